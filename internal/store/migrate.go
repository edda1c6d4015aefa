package store

import (
	"context"
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
)

// Migrate applies the schema. Statements are idempotent so they run on
// every startup. Timestamps are stored as unix seconds to stay portable
// across the three dialects.
func (c *Client) Migrate(ctx context.Context) error {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	blob := "BLOB"

	switch c.dialect {
	case dialect.Postgres:
		pk = "SERIAL PRIMARY KEY"
		blob = "BYTEA"
	case dialect.MySQL:
		pk = "INTEGER PRIMARY KEY AUTO_INCREMENT"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tenants (
			id %s,
			name VARCHAR(255) NOT NULL UNIQUE,
			salt VARCHAR(64) NOT NULL,
			kdf_iterations INTEGER NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'active',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS topics (
			id %s,
			tenant_id INTEGER NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			payload %s NOT NULL,
			embedding %s NULL,
			importance DOUBLE PRECISION NOT NULL DEFAULT 0,
			extraction_version INTEGER NOT NULL DEFAULT 0,
			orphaned BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			deleted_at BIGINT NULL
		)`, pk, blob, blob),
		`CREATE INDEX IF NOT EXISTS idx_topics_tenant_user ON topics (tenant_id, user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_topics_tenant_deleted ON topics (tenant_id, deleted_at)`,
		`CREATE INDEX IF NOT EXISTS idx_topics_tenant_importance ON topics (tenant_id, importance)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS anchors (
			id %s,
			tenant_id INTEGER NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			topic_id INTEGER NOT NULL,
			payload %s NOT NULL,
			stale BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`, pk, blob),
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_anchors_topic_user ON anchors (tenant_id, topic_id, user_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS topic_edges (
			id %s,
			tenant_id INTEGER NOT NULL,
			src_id INTEGER NOT NULL,
			dst_id INTEGER NOT NULL,
			kind VARCHAR(32) NOT NULL,
			weight DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL
		)`, pk),
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_edges_unique ON topic_edges (tenant_id, src_id, dst_id, kind)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_tenant_src ON topic_edges (tenant_id, src_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS pending_actions (
			id %s,
			tenant_id INTEGER NOT NULL,
			kind VARCHAR(64) NOT NULL,
			target_ids TEXT NOT NULL,
			fingerprint BIGINT NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'pending',
			attempts INTEGER NOT NULL DEFAULT 0,
			claim_token VARCHAR(64) NULL,
			claimed_at BIGINT NULL,
			last_error TEXT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`, pk),
		`CREATE INDEX IF NOT EXISTS idx_actions_tenant_status ON pending_actions (tenant_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_fingerprint ON pending_actions (tenant_id, fingerprint)`,
	}

	for _, stmt := range statements {
		if _, err := c.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed on %q: %w", firstLine(stmt), err)
		}
	}

	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i > 0 {
		return strings.TrimSpace(s[:i])
	}

	return s
}
