package objects

import "time"

// TopicContent carries every human-readable field of a topic. It lives
// only inside the sealed payload blob at rest and in request-scoped
// memory after decryption.
type TopicContent struct {
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	Entities []string `json:"entities,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// Topic is the transient decrypted representation assembled by the
// encrypted entity boundary: structural fields plus content. It must not
// be persisted, cached or logged.
type Topic struct {
	ID                int          `json:"id"`
	TenantID          int          `json:"tenant_id"`
	UserID            string       `json:"user_id"`
	Content           TopicContent `json:"content"`
	Embedding         []float32    `json:"embedding,omitempty"`
	Importance        float64      `json:"importance"`
	ExtractionVersion int          `json:"extraction_version"`
	Orphaned          bool         `json:"orphaned"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
	DeletedAt         *time.Time   `json:"deleted_at,omitempty"`
}

// TopicSummary is the structural listing shape. Title is filled only
// when the request carried a content key.
type TopicSummary struct {
	ID         int        `json:"id"`
	UserID     string     `json:"user_id"`
	Title      string     `json:"title,omitempty"`
	Importance float64    `json:"importance"`
	Orphaned   bool       `json:"orphaned"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// SearchHit is one vector-search result. Structural always; title only
// under a key.
type SearchHit struct {
	ID         int     `json:"id"`
	Score      float64 `json:"score"`
	Title      string  `json:"title,omitempty"`
	Importance float64 `json:"importance"`
}
