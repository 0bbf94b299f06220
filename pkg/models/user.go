package models

// ReadCursor marks how far a user has read in one stream. One cursor per
// (user, channel) and one per (user, DM thread). Last write wins; nothing
// in the store enforces monotonicity.
type ReadCursor struct {
	MessageID string `json:"message_id"`
	TS        int64  `json:"ts"`
}

// User is the badge/XP subset of a user profile document. Badges is the
// legacy stored badge list kept for backward compatibility; the unlocked
// set is derived from the catalog predicates and unioned with it.
type User struct {
	ID                   string             `json:"id"`
	DisplayName          string             `json:"display_name,omitempty"`
	Badges               []string           `json:"badges,omitempty"`
	SelectedBadges       []string           `json:"selected_badges,omitempty"`
	ChatXP               int                `json:"chat_xp"`
	ChatLevel            int                `json:"chat_level"`
	CoursesProgress      map[string]float64 `json:"courses_progress,omitempty"`
	AccountabilityPoints int                `json:"accountability_points,omitempty"`
	// TimeoutUntil is a unix-nano deadline before which the user may not
	// send messages. Zero means no timeout.
	TimeoutUntil int64 `json:"timeout_until,omitempty"`
}

// TimedOut reports whether the user is under a moderation timeout at ts.
func (u *User) TimedOut(ts int64) bool {
	return u.TimeoutUntil != 0 && ts < u.TimeoutUntil
}
