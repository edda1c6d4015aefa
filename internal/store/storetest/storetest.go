// Package storetest provides in-memory sqlite clients for tests.
package storetest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/looplj/memvault/internal/store"
)

var dbSeq atomic.Int64

// NewClient opens a fresh migrated in-memory database. Each call gets
// its own shared-cache namespace so parallel tests do not collide.
func NewClient(t *testing.T) *store.Client {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:storetest_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		dbSeq.Add(1),
	)

	client, err := store.Open(store.Config{Dialect: "sqlite3", DSN: dsn})
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}

	// Shared-cache sqlite returns SQLITE_LOCKED under concurrent
	// writers; a single connection serializes them.
	client.DB().SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}
