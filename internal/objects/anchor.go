package objects

import "time"

// AnchorCard is the human-readable anchor content, sealed at rest.
type AnchorCard struct {
	Card     string   `json:"card"`
	Entities []string `json:"entities,omitempty"`
}

// Anchor is the transient decrypted anchor representation. One anchor
// exists per (topic, user); it is regenerated by a deferred action when
// the topic changes.
type Anchor struct {
	ID        int        `json:"id"`
	TenantID  int        `json:"tenant_id"`
	UserID    string     `json:"user_id"`
	TopicID   int        `json:"topic_id"`
	Card      AnchorCard `json:"card"`
	Stale     bool       `json:"stale"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
