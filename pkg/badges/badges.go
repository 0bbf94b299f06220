package badges

import (
	"strings"

	"huddle/pkg/models"
)

// MaxSelected is the display cap for a profile's chosen badges.
const MaxSelected = 3

// Badge is one unlockable achievement: a stable identifier plus the
// predicate deciding whether a user has earned it.
type Badge struct {
	ID       string
	Unlocked func(u models.User) bool
}

// scholarCourses are the course ids whose completion earns SCHOLAR.
var scholarCourses = []string{"foundations", "nutrition", "training"}

// Catalog is the fixed set of unlockable badges. Level-indicator strings
// ("Level N") are deliberately absent; they are synthetic display values,
// never unlockable or selectable.
var Catalog = []Badge{
	{ID: "SCHOLAR", Unlocked: func(u models.User) bool {
		for _, c := range scholarCourses {
			if u.CoursesProgress[c] < 1 {
				return false
			}
		}
		return true
	}},
	{ID: "MINDSET", Unlocked: func(u models.User) bool {
		return u.CoursesProgress["mindset"] >= 1
	}},
	{ID: "ACCOUNTABILITY", Unlocked: func(u models.User) bool {
		return u.AccountabilityPoints >= 5
	}},
	{ID: "REGULAR", Unlocked: func(u models.User) bool {
		return u.ChatLevel >= 5
	}},
}

// IsLevelIndicator reports whether a badge string is a synthetic "Level N"
// display value rather than a real badge.
func IsLevelIndicator(id string) bool {
	return strings.HasPrefix(id, "Level ")
}

// Unlocked returns the badges a user has earned: every catalog badge whose
// predicate passes, unioned with any legacy identifiers already stored on
// the profile. Level indicators never make it into the result.
func Unlocked(u models.User) []string {
	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		if id == "" || seen[id] || IsLevelIndicator(id) {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, b := range Catalog {
		if b.Unlocked(u) {
			add(b.ID)
		}
	}
	for _, id := range u.Badges {
		add(id)
	}
	return out
}

// EnforceSelected is the single source of truth for the displayable-badge
// invariant. It filters the selection to unlocked, non-level-indicator
// badges, deduplicates preserving first-seen order, and truncates to
// MaxSelected. Applied on both persist and render, so a badge revoked
// after selection never displays.
func EnforceSelected(selected []string, u models.User) []string {
	unlocked := map[string]bool{}
	for _, id := range Unlocked(u) {
		unlocked[id] = true
	}
	seen := map[string]bool{}
	out := []string{}
	for _, id := range selected {
		if IsLevelIndicator(id) || !unlocked[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		if len(out) == MaxSelected {
			break
		}
	}
	return out
}
