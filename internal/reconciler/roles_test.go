package reconciler

import (
	"testing"

	"gitbridge/pkg/models"
)

func TestTierFor(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		tiers    []RoleTier
		expected string
	}{
		{"zero PRs no tier", 0, prTiers, ""},
		{"first PR tier at threshold", 1, prTiers, "🌸 1+ PRs"},
		{"PR tier mid-band", 10, prTiers, "🌺 6+ PRs"},
		{"highest PR tier", 200, prTiers, "🌹 51+ PRs"},
		{"PR tier exact boundary", 31, prTiers, "🌷 31+ PRs"},
		{"below boundary stays lower", 30, prTiers, "🌻 16+ PRs"},
		{"issue tier", 7, issueTiers, "🌿 6+ GitHub Issues Reported"},
		{"commit tier wide first band", 50, commitTiers, "☁️ 1+ Commits"},
		{"top commit tier", 501, commitTiers, "⭐ 501+ Commits"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tierFor(tt.count, tt.tiers)
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestDesiredRoleNames(t *testing.T) {
	c := models.Contribution{PRCount: 8, IssuesCount: 0, CommitsCount: 120}
	names := desiredRoleNames(c, "")

	want := map[string]bool{
		"🌺 6+ PRs":       true,
		"🌈 101+ Commits": true,
	}
	if len(names) != len(want) {
		t.Fatalf("expected %d roles, got %v", len(want), names)
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected role %q", n)
		}
	}
}

func TestDesiredRoleNames_OneTierPerTrack(t *testing.T) {
	c := models.Contribution{PRCount: 100}
	names := desiredRoleNames(c, "")
	if len(names) != 1 {
		t.Fatalf("expected single PR role, got %v", names)
	}
	if names[0] != "🌹 51+ PRs" {
		t.Errorf("expected highest reached tier only, got %q", names[0])
	}
}

func TestDesiredRoleNames_IncludesMedal(t *testing.T) {
	c := models.Contribution{PRCount: 60}
	names := desiredRoleNames(c, "✨ PR Champion")

	found := false
	for _, n := range names {
		if n == "✨ PR Champion" {
			found = true
		}
	}
	if !found {
		t.Errorf("medal missing from %v", names)
	}
}

func TestMedalAssignments(t *testing.T) {
	top := []models.Contribution{
		{GitHubUsername: "alice", PRCount: 90},
		{GitHubUsername: "bob", PRCount: 80},
		{GitHubUsername: "carol", PRCount: 70},
	}
	medals := medalAssignments(top)

	if medals["alice"] != "✨ PR Champion" {
		t.Errorf("alice: got %q", medals["alice"])
	}
	if medals["bob"] != "💫 PR Runner-up" {
		t.Errorf("bob: got %q", medals["bob"])
	}
	if medals["carol"] != "🔮 PR Bronze" {
		t.Errorf("carol: got %q", medals["carol"])
	}
}

func TestMedalAssignments_FewerThanThree(t *testing.T) {
	medals := medalAssignments([]models.Contribution{{GitHubUsername: "solo", PRCount: 5}})
	if len(medals) != 1 {
		t.Fatalf("expected 1 medal, got %v", medals)
	}
	if medals["solo"] != "✨ PR Champion" {
		t.Errorf("solo: got %q", medals["solo"])
	}
}

func TestMedalAssignments_IgnoresExtraEntries(t *testing.T) {
	top := []models.Contribution{
		{GitHubUsername: "a"}, {GitHubUsername: "b"},
		{GitHubUsername: "c"}, {GitHubUsername: "d"},
	}
	medals := medalAssignments(top)
	if len(medals) != 3 {
		t.Fatalf("expected 3 medals, got %d", len(medals))
	}
	if _, ok := medals["d"]; ok {
		t.Error("fourth place must not receive a medal")
	}
}
