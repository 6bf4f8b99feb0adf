package reconciler

import "gitbridge/pkg/models"

// RoleTier maps a contribution threshold to a role. Tiers are ordered
// ascending; a member holds at most the highest tier they reach in each
// track.
type RoleTier struct {
	Name  string
	Min   int
	Color int
}

var prTiers = []RoleTier{
	{Name: "🌸 1+ PRs", Min: 1, Color: 0xFFB6C1},
	{Name: "🌺 6+ PRs", Min: 6, Color: 0xFFA0B4},
	{Name: "🌻 16+ PRs", Min: 16, Color: 0xFF8CA7},
	{Name: "🌷 31+ PRs", Min: 31, Color: 0xFF789A},
	{Name: "🌹 51+ PRs", Min: 51, Color: 0xFF648D},
}

var issueTiers = []RoleTier{
	{Name: "🍃 1+ GitHub Issues Reported", Min: 1, Color: 0xBDFCC9},
	{Name: "🌿 6+ GitHub Issues Reported", Min: 6, Color: 0xA9FCBA},
	{Name: "🌱 16+ GitHub Issues Reported", Min: 16, Color: 0x95FCAB},
	{Name: "🌾 31+ GitHub Issues Reported", Min: 31, Color: 0x81FC9C},
	{Name: "🍀 51+ GitHub Issues Reported", Min: 51, Color: 0x6DFC8D},
}

var commitTiers = []RoleTier{
	{Name: "☁️ 1+ Commits", Min: 1, Color: 0xE6E6FA},
	{Name: "🌊 51+ Commits", Min: 51, Color: 0xADD8E6},
	{Name: "🌈 101+ Commits", Min: 101, Color: 0xBABAFF},
	{Name: "🌙 251+ Commits", Min: 251, Color: 0xDDA0DD},
	{Name: "⭐ 501+ Commits", Min: 501, Color: 0xC88CFF},
}

// Medal roles for the top three all-time PR authors, in rank order.
var medalTiers = []RoleTier{
	{Name: "✨ PR Champion", Color: 0xFFD7B4},
	{Name: "💫 PR Runner-up", Color: 0xDCDCDC},
	{Name: "🔮 PR Bronze", Color: 0xCDB496},
}

// Role names from earlier deployments that should be removed from guilds
// when seen. Never recreated.
var obsoleteRoleNames = map[string]struct{}{
	"Beginner (1-5 PRs)":       {},
	"Contributor (6-15 PRs)":   {},
	"Analyst (16-30 PRs)":      {},
	"Expert (31-50 PRs)":       {},
	"Master (51+ PRs)":         {},
	"Beginner (1-5 Issues)":    {},
	"Contributor (6-15 Issues)": {},
	"Analyst (16-30 Issues)":   {},
	"Expert (31-50 Issues)":    {},
	"Master (51+ Issues)":      {},
	"Beginner (1-50 Commits)":  {},
	"Contributor (51-100 Commits)": {},
	"Analyst (101-250 Commits)":    {},
	"Expert (251-500 Commits)":     {},
	"Master (501+ Commits)":        {},
	"PR Champion":                  {},
	"PR Runner-up":                 {},
	"PR Bronze":                    {},
}

// tierFor returns the highest tier whose threshold count reaches, or ""
// below the first threshold.
func tierFor(count int, tiers []RoleTier) string {
	name := ""
	for _, t := range tiers {
		if count >= t.Min {
			name = t.Name
		}
	}
	return name
}

// desiredRoleNames computes the full role set a member should hold given
// their contribution counts and optional medal. Both additive and
// subtractive: anything managed and not in this set is revoked.
func desiredRoleNames(c models.Contribution, medal string) []string {
	var names []string
	if n := tierFor(c.PRCount, prTiers); n != "" {
		names = append(names, n)
	}
	if n := tierFor(c.IssuesCount, issueTiers); n != "" {
		names = append(names, n)
	}
	if n := tierFor(c.CommitsCount, commitTiers); n != "" {
		names = append(names, n)
	}
	if medal != "" {
		names = append(names, medal)
	}
	return names
}

// managedTiers returns every role the reconciler owns, creation color
// included.
func managedTiers() []RoleTier {
	out := make([]RoleTier, 0, len(prTiers)+len(issueTiers)+len(commitTiers)+len(medalTiers))
	out = append(out, prTiers...)
	out = append(out, issueTiers...)
	out = append(out, commitTiers...)
	out = append(out, medalTiers...)
	return out
}

// medalAssignments maps the top PR authors (rank order) to medal role names.
func medalAssignments(top []models.Contribution) map[string]string {
	medals := make(map[string]string, len(medalTiers))
	for i, c := range top {
		if i >= len(medalTiers) {
			break
		}
		medals[c.GitHubUsername] = medalTiers[i].Name
	}
	return medals
}
