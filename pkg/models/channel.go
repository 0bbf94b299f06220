package models

// Channel is a named, role-gated chat stream. Channels are static config,
// not stored entities; the id is only a key path in the store.
type Channel struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	ModOnly  bool   `json:"mod_only,omitempty" yaml:"mod_only"`
	ReadOnly bool   `json:"read_only,omitempty" yaml:"read_only"`
}

// Report is a moderation report appended by a user against a message.
type Report struct {
	ID       string `json:"id"`
	Reporter string `json:"reporter"`
	Message  string `json:"message_id"`
	Stream   string `json:"stream"`
	Reason   string `json:"reason"`
	TS       int64  `json:"ts"`
}

// Split is one entry of a user's shared training-split list. The list is
// replaced wholesale via a batched write.
type Split struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Days  []string `json:"days,omitempty"`
}
