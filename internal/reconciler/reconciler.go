package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gitbridge/internal/discord"
	"gitbridge/internal/metrics"
	"gitbridge/internal/store"
	"gitbridge/pkg/models"
)

var ErrOrgNotLinked = errors.New("tenant has no linked organization")

// StatsCategoryLabel is the well-known name of the per-tenant category that
// holds the organization metric channels. At steady state each guild has
// exactly one; concurrent reconciliations can transiently create more, and
// every run collapses extras back down to the oldest one.
const StatsCategoryLabel = "REPOSITORY STATS"

// Summary reports what one reconciliation run changed. A run against
// unchanged organization data reports all zeros.
type Summary struct {
	CategoriesCreated int `json:"categories_created"`
	CategoriesDeleted int `json:"categories_deleted"`
	ChannelsCreated   int `json:"channels_created"`
	ChannelsUpdated   int `json:"channels_updated"`
	RolesGranted      int `json:"roles_granted"`
	RolesRevoked      int `json:"roles_revoked"`
	MembersUpdated    int `json:"members_updated"`
}

// Reconciler converges one tenant's visible Discord artifacts (the stats
// category, its metric channels, and member roles) to the current state of
// the tenant's linked organization. Safe to invoke concurrently for the
// same tenant: check-then-create races can duplicate the category, and the
// duplicate-collapse step repairs that on whichever run sees it next.
type Reconciler struct {
	store   store.Store
	discord discord.Client
}

// New creates a Reconciler.
func New(s store.Store, d discord.Client) *Reconciler {
	return &Reconciler{store: s, discord: d}
}

// ReconcileTenant runs the full convergence for one tenant. Individual role
// grant/revoke failures are logged and skipped rather than aborting the
// run; the next cycle retries them naturally.
func (r *Reconciler) ReconcileTenant(ctx context.Context, tenantID string) (*Summary, error) {
	start := time.Now()
	summary, err := r.reconcile(ctx, tenantID)
	metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ReconcileRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ReconcileRuns.WithLabelValues("success").Inc()
	slog.Info("tenant reconciled",
		"tenant_id", tenantID,
		"categories_created", summary.CategoriesCreated,
		"categories_deleted", summary.CategoriesDeleted,
		"roles_granted", summary.RolesGranted,
		"roles_revoked", summary.RolesRevoked,
	)
	return summary, nil
}

func (r *Reconciler) reconcile(ctx context.Context, tenantID string) (*Summary, error) {
	tenant, err := r.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	if tenant.GitHubOrg == nil {
		return nil, ErrOrgNotLinked
	}
	orgSlug := *tenant.GitHubOrg

	// Before the first refresh completes there is no organization record
	// yet; converge against zero-value metrics so setup can still build the
	// category skeleton.
	var orgMetrics models.OrgMetrics
	if org, err := r.store.GetOrganization(ctx, orgSlug); err == nil {
		orgMetrics = org.Metrics
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load organization: %w", err)
	}

	summary := &Summary{}

	statsCategory, err := r.convergeCategory(ctx, tenant.ID, summary)
	if err != nil {
		return nil, err
	}
	if err := r.convergeStatChannels(ctx, tenant.ID, statsCategory, orgMetrics, summary); err != nil {
		return nil, err
	}
	if err := r.convergeRoles(ctx, tenant.ID, orgSlug, summary); err != nil {
		return nil, err
	}

	return summary, nil
}

// convergeCategory ensures exactly one stats category exists and returns it.
// With two or more matches the oldest-created survives, decided by the
// snowflake timestamp rather than listing order, and every other match is
// deleted along with its children.
func (r *Reconciler) convergeCategory(ctx context.Context, guildID string, summary *Summary) (*discord.Channel, error) {
	channels, err := r.discord.GuildChannels(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("list guild channels: %w", err)
	}

	var matches []discord.Channel
	for _, ch := range channels {
		if ch.Type == discord.ChannelTypeCategory && ch.Name == StatsCategoryLabel {
			matches = append(matches, ch)
		}
	}

	if len(matches) == 0 {
		created, err := r.discord.CreateChannel(ctx, guildID, discord.CreateChannelParams{
			Name: StatsCategoryLabel,
			Type: discord.ChannelTypeCategory,
		})
		if err != nil {
			return nil, fmt.Errorf("create stats category: %w", err)
		}
		summary.CategoriesCreated++
		return created, nil
	}

	sort.Slice(matches, func(i, j int) bool {
		return discord.SnowflakeTime(matches[i].ID).Before(discord.SnowflakeTime(matches[j].ID))
	})
	keep := matches[0]

	for _, dup := range matches[1:] {
		for _, ch := range channels {
			if ch.ParentID != nil && *ch.ParentID == dup.ID {
				if err := r.discord.DeleteChannel(ctx, ch.ID); err != nil {
					slog.Warn("delete duplicate category child", "channel_id", ch.ID, "error", err)
				}
			}
		}
		if err := r.discord.DeleteChannel(ctx, dup.ID); err != nil {
			return nil, fmt.Errorf("delete duplicate category %s: %w", dup.ID, err)
		}
		summary.CategoriesDeleted++
		metrics.DuplicateCategories.Inc()
		slog.Info("duplicate stats category deleted", "guild_id", guildID, "category_id", dup.ID)
	}

	return &keep, nil
}

// statChannelNames returns the desired channel names in display order,
// keyed by their stable prefix.
func statChannelNames(m models.OrgMetrics) []struct{ Keyword, Name string } {
	return []struct{ Keyword, Name string }{
		{"Stars:", fmt.Sprintf("Stars: %d", m.Stars)},
		{"Forks:", fmt.Sprintf("Forks: %d", m.Forks)},
		{"Contributors:", fmt.Sprintf("Contributors: %d", m.Contributors)},
		{"PRs:", fmt.Sprintf("PRs: %d", m.PRs)},
		{"Issues:", fmt.Sprintf("Issues: %d", m.Issues)},
		{"Commits:", fmt.Sprintf("Commits: %d", m.Commits)},
	}
}

// convergeStatChannels updates the metric channels under the kept category.
// Existing channels are renamed in place, never recreated, so channel IDs
// stay stable across refreshes.
func (r *Reconciler) convergeStatChannels(ctx context.Context, guildID string, category *discord.Channel, m models.OrgMetrics, summary *Summary) error {
	channels, err := r.discord.GuildChannels(ctx, guildID)
	if err != nil {
		return fmt.Errorf("list guild channels: %w", err)
	}

	existing := make(map[string]discord.Channel)
	for _, ch := range channels {
		if ch.Type != discord.ChannelTypeVoice || ch.ParentID == nil || *ch.ParentID != category.ID {
			continue
		}
		for _, want := range statChannelNames(m) {
			if strings.HasPrefix(ch.Name, want.Keyword) {
				existing[want.Keyword] = ch
				break
			}
		}
	}

	for _, want := range statChannelNames(m) {
		current, ok := existing[want.Keyword]
		if !ok {
			parentID := category.ID
			_, err := r.discord.CreateChannel(ctx, guildID, discord.CreateChannelParams{
				Name:     want.Name,
				Type:     discord.ChannelTypeVoice,
				ParentID: &parentID,
			})
			if err != nil {
				return fmt.Errorf("create stat channel %q: %w", want.Name, err)
			}
			summary.ChannelsCreated++
			continue
		}
		if current.Name != want.Name {
			if err := r.discord.RenameChannel(ctx, current.ID, want.Name); err != nil {
				return fmt.Errorf("rename stat channel %q: %w", want.Name, err)
			}
			summary.ChannelsUpdated++
		}
	}
	return nil
}

// convergeRoles recomputes every linked member's role set from the
// refreshed contribution counts and applies the difference.
func (r *Reconciler) convergeRoles(ctx context.Context, guildID, orgSlug string, summary *Summary) error {
	guildRoles, err := r.discord.GuildRoles(ctx, guildID)
	if err != nil {
		return fmt.Errorf("list guild roles: %w", err)
	}

	rolesByName := make(map[string]discord.Role, len(guildRoles))
	for _, role := range guildRoles {
		rolesByName[role.Name] = role
	}

	// Obsolete roles from earlier deployments are removed outright; member
	// assignments disappear with the role.
	for name := range obsoleteRoleNames {
		if role, ok := rolesByName[name]; ok {
			if err := r.discord.DeleteRole(ctx, guildID, role.ID); err != nil {
				slog.Warn("delete obsolete role", "role", name, "error", err)
				continue
			}
			delete(rolesByName, name)
		}
	}

	for _, tier := range managedTiers() {
		if _, ok := rolesByName[tier.Name]; ok {
			continue
		}
		created, err := r.discord.CreateRole(ctx, guildID, tier.Name, tier.Color)
		if err != nil {
			return fmt.Errorf("create role %q: %w", tier.Name, err)
		}
		rolesByName[tier.Name] = *created
	}

	managedIDs := make(map[string]string, len(rolesByName)) // role ID -> name
	for _, tier := range managedTiers() {
		if role, ok := rolesByName[tier.Name]; ok {
			managedIDs[role.ID] = role.Name
		}
	}

	members, err := r.discord.GuildMembers(ctx, guildID)
	if err != nil {
		return fmt.Errorf("list guild members: %w", err)
	}

	memberIDs := make([]string, 0, len(members))
	for _, m := range members {
		if !m.User.Bot {
			memberIDs = append(memberIDs, m.User.ID)
		}
	}

	links, err := r.store.ListUserLinks(ctx, memberIDs)
	if err != nil {
		return fmt.Errorf("list user links: %w", err)
	}
	linkByDiscordID := make(map[string]*models.UserLink, len(links))
	usernames := make([]string, 0, len(links))
	for _, l := range links {
		linkByDiscordID[l.DiscordUserID] = l
		usernames = append(usernames, l.GitHubUsername)
	}

	contribs, err := r.store.GetContributions(ctx, orgSlug, usernames)
	if err != nil {
		return fmt.Errorf("load contributions: %w", err)
	}

	top, err := r.store.TopContributorsByPRs(ctx, orgSlug, len(medalTiers))
	if err != nil {
		return fmt.Errorf("load top contributors: %w", err)
	}
	medals := medalAssignments(top)

	for _, member := range members {
		link, ok := linkByDiscordID[member.User.ID]
		if !ok {
			continue
		}
		contribution, ok := contribs[link.GitHubUsername]
		if !ok {
			// Linked but no recorded contributions: everything managed is
			// revoked below via the empty desired set.
			contribution = models.Contribution{}
		}

		desired := make(map[string]bool)
		for _, name := range desiredRoleNames(contribution, medals[link.GitHubUsername]) {
			desired[name] = true
		}

		changed := false
		for _, roleID := range member.RoleIDs {
			name, managed := managedIDs[roleID]
			if !managed || desired[name] {
				continue
			}
			if err := r.discord.RemoveMemberRole(ctx, guildID, member.User.ID, roleID); err != nil {
				slog.Warn("revoke role", "user_id", member.User.ID, "role", name, "error", err)
				continue
			}
			summary.RolesRevoked++
			metrics.RoleChanges.WithLabelValues("revoked").Inc()
			changed = true
		}

		held := make(map[string]bool, len(member.RoleIDs))
		for _, roleID := range member.RoleIDs {
			held[roleID] = true
		}
		for name := range desired {
			role, ok := rolesByName[name]
			if !ok || held[role.ID] {
				continue
			}
			if err := r.discord.AddMemberRole(ctx, guildID, member.User.ID, role.ID); err != nil {
				slog.Warn("grant role", "user_id", member.User.ID, "role", name, "error", err)
				continue
			}
			summary.RolesGranted++
			metrics.RoleChanges.WithLabelValues("granted").Inc()
			changed = true
		}

		if changed {
			summary.MembersUpdated++
		}
	}

	return nil
}
