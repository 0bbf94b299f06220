package models

// Reaction is a single emoji reaction by one user. A message holds at most
// one reaction per user id; toggling logic enforces that, not the store.
type Reaction struct {
	Emoji  string `json:"emoji"`
	UserID string `json:"user_id"`
}

// Message is one entry in a channel or DM stream. Stream is the channel id
// for channel messages and the DM thread id for direct messages. Ordering
// key is TS (server-assigned on write).
type Message struct {
	ID        string     `json:"id"`
	Stream    string     `json:"stream"`
	Author    string     `json:"author"`
	Text      string     `json:"text"`
	TS        int64      `json:"ts"`
	Reactions []Reaction `json:"reactions,omitempty"`
	Pinned    bool       `json:"pinned,omitempty"`
	PinnedTS  int64      `json:"pinned_ts,omitempty"`
	MediaURL  string     `json:"media_url,omitempty"`
	SaveCount int        `json:"save_count,omitempty"`
}

// ReactionBy returns the index of the reaction authored by userID, or -1.
func (m *Message) ReactionBy(userID string) int {
	for i, r := range m.Reactions {
		if r.UserID == userID {
			return i
		}
	}
	return -1
}

// LatestMeta is the compact view of the newest message in a stream,
// sufficient for unread computation (query: order by ts desc, limit 1).
type LatestMeta struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	TS     int64  `json:"ts"`
}
