// Package sqlite registers the pure-Go sqlite driver under the name
// "sqlite3" so the store can open it with the familiar driver name
// without cgo.
package sqlite

import (
	"database/sql"

	"modernc.org/sqlite"
)

//nolint:gochecknoinits // driver registration.
func init() {
	sql.Register("sqlite3", &sqlite.Driver{})
}
