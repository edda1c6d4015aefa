// Package store implements persistence over database/sql using the ent
// dialect and query builder, with hand-written entity stores. All rows
// are structural except payload blobs, which only ever hold sealed
// envelopes produced by the crypto codec.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"entgo.io/ent/dialect"

	entsql "entgo.io/ent/dialect/sql"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	_ "github.com/looplj/memvault/internal/pkg/sqlite"
)

// conn abstracts *sql.DB and *sql.Tx so stores run unchanged inside
// transactions.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Client is the dialect-aware store handle. The entity stores share one
// underlying connection (or transaction).
type Client struct {
	db      *sql.DB
	conn    conn
	dialect string
	tx      *sql.Tx

	Tenants *TenantStore
	Topics  *TopicStore
	Anchors *AnchorStore
	Edges   *EdgeStore
	Actions *ActionStore
}

// Open connects, applies migrations and returns a ready client.
func Open(cfg Config) (*Client, error) {
	var (
		db        *sql.DB
		dbDialect string
		err       error
	)

	switch cfg.Dialect {
	case "postgres", "pgx", "pg", "postgresql":
		db, err = sql.Open("pgx", cfg.DSN)
		dbDialect = dialect.Postgres
	case "sqlite3", "sqlite":
		db, err = sql.Open("sqlite3", cfg.DSN)
		dbDialect = dialect.SQLite
	case "mysql", "tidb":
		db, err = sql.Open("mysql", cfg.DSN)
		dbDialect = dialect.MySQL
	default:
		return nil, fmt.Errorf("invalid dialect: %s", cfg.Dialect)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	client := newClient(db, db, dbDialect)

	if err := client.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return client, nil
}

func newClient(db *sql.DB, cn conn, d string) *Client {
	c := &Client{db: db, conn: cn, dialect: d}
	c.Tenants = &TenantStore{client: c}
	c.Topics = &TopicStore{client: c}
	c.Anchors = &AnchorStore{client: c}
	c.Edges = &EdgeStore{client: c}
	c.Actions = &ActionStore{client: c}

	return c
}

// Dialect returns the ent dialect constant in use.
func (c *Client) Dialect() string { return c.dialect }

// DB exposes the raw handle for maintenance statements (VACUUM).
func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}

	return c.db.Close()
}

// Tx begins a transaction and returns a client view bound to it.
func (c *Client) Tx(ctx context.Context) (*Client, error) {
	if c.tx != nil {
		return c, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	txClient := newClient(c.db, tx, c.dialect)
	txClient.tx = tx

	return txClient, nil
}

// InTx reports whether the client is bound to a transaction.
func (c *Client) InTx() bool { return c.tx != nil }

func (c *Client) Commit() error {
	if c.tx == nil {
		return nil
	}

	return c.tx.Commit()
}

func (c *Client) Rollback() error {
	if c.tx == nil {
		return nil
	}

	return c.tx.Rollback()
}

// builder returns a dialect-bound query builder.
func (c *Client) builder() *entsql.DialectBuilder {
	return entsql.Dialect(c.dialect)
}

// insertID executes an insert and returns the generated id.
func (c *Client) insertID(ctx context.Context, b *entsql.InsertBuilder) (int, error) {
	if c.dialect == dialect.MySQL {
		query, args := b.Query()

		res, err := c.conn.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}

		id, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}

		return int(id), nil
	}

	query, args := b.Returning("id").Query()

	var id int
	if err := c.conn.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

type clientContextKey struct{}

// NewContext stores the client in the context. Transactions replace it
// with a tx-bound client so services pick them up transparently.
func NewContext(ctx context.Context, client *Client) context.Context {
	return context.WithValue(ctx, clientContextKey{}, client)
}

// FromContext retrieves the client from the context, or nil.
func FromContext(ctx context.Context) *Client {
	client, _ := ctx.Value(clientContextKey{}).(*Client)
	return client
}
