package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// Edge is a structural topic relation row.
type Edge struct {
	ID        int
	TenantID  int
	SrcID     int
	DstID     int
	Kind      string
	Weight    float64
	CreatedAt time.Time
}

type EdgeStore struct {
	client *Client
}

var edgeColumns = []string{"id", "tenant_id", "src_id", "dst_id", "kind", "weight", "created_at"}

func (s *EdgeStore) scan(row interface{ Scan(...any) error }) (*Edge, error) {
	var (
		e         Edge
		createdAt int64
	)

	err := row.Scan(&e.ID, &e.TenantID, &e.SrcID, &e.DstID, &e.Kind, &e.Weight, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	e.CreatedAt = unixToTime(createdAt)

	return &e, nil
}

func (s *EdgeStore) queryMany(ctx context.Context, query string, args []any) ([]*Edge, error) {
	rows, err := s.client.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*Edge

	for rows.Next() {
		e, err := s.scan(rows)
		if err != nil {
			return nil, err
		}

		edges = append(edges, e)
	}

	return edges, rows.Err()
}

func (s *EdgeStore) Create(ctx context.Context, e *Edge) (int, error) {
	now := time.Now().UTC().Truncate(time.Second)

	b := s.client.builder().Insert("topic_edges").
		Columns("tenant_id", "src_id", "dst_id", "kind", "weight", "created_at").
		Values(e.TenantID, e.SrcID, e.DstID, e.Kind, e.Weight, now.Unix())

	id, err := s.client.insertID(ctx, b)
	if err != nil {
		return 0, err
	}

	e.ID = id
	e.CreatedAt = now

	return id, nil
}

func (s *EdgeStore) Exists(ctx context.Context, tenantID, srcID, dstID int, kind string) (bool, error) {
	query, args := s.client.builder().Select("id").
		From(entsql.Table("topic_edges")).
		Where(entsql.And(
			entsql.EQ("tenant_id", tenantID),
			entsql.EQ("src_id", srcID),
			entsql.EQ("dst_id", dstID),
			entsql.EQ("kind", kind),
		)).
		Query()

	var id int

	err := s.client.conn.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}

// Neighbors returns edges touching a topic in either direction.
func (s *EdgeStore) Neighbors(ctx context.Context, tenantID, topicID int) ([]*Edge, error) {
	query, args := s.client.builder().Select(edgeColumns...).
		From(entsql.Table("topic_edges")).
		Where(entsql.And(
			entsql.EQ("tenant_id", tenantID),
			entsql.Or(entsql.EQ("src_id", topicID), entsql.EQ("dst_id", topicID)),
		)).
		OrderBy("id").
		Query()

	return s.queryMany(ctx, query, args)
}

func (s *EdgeStore) ListByTenant(ctx context.Context, tenantID int) ([]*Edge, error) {
	query, args := s.client.builder().Select(edgeColumns...).
		From(entsql.Table("topic_edges")).
		Where(entsql.EQ("tenant_id", tenantID)).
		OrderBy("id").
		Query()

	return s.queryMany(ctx, query, args)
}

// Repoint rewrites edges of a merged topic onto the surviving topic.
// Structural operation used by merge execution.
//
// Near-duplicate topics usually share neighbors, so the rewritten form
// of a merged edge may already exist on the survivor. Those duplicates
// (and the edges between the pair, which would collapse into
// self-loops) are dropped up front so the updates never collide with
// idx_edges_unique.
func (s *EdgeStore) Repoint(ctx context.Context, tenantID, fromID, toID int) error {
	query, args := s.client.builder().Delete("topic_edges").
		Where(entsql.And(
			entsql.EQ("tenant_id", tenantID),
			entsql.Or(
				entsql.And(entsql.EQ("src_id", fromID), entsql.EQ("dst_id", toID)),
				entsql.And(entsql.EQ("src_id", toID), entsql.EQ("dst_id", fromID)),
			),
		)).
		Query()

	if _, err := s.client.conn.ExecContext(ctx, query, args...); err != nil {
		return err
	}

	// The survivor's adjacency is read through derived tables: MySQL
	// rejects subqueries that read the delete target directly.
	edgesTable := entsql.Table("topic_edges")
	survivorOutTable := entsql.Select("dst_id", "kind").
		From(entsql.Table("topic_edges")).
		Where(entsql.And(entsql.EQ("tenant_id", tenantID), entsql.EQ("src_id", toID))).
		As("survivor_out")
	survivorOut := entsql.Select("dst_id").
		From(survivorOutTable).
		Where(entsql.And(
			entsql.ColumnsEQ(survivorOutTable.C("dst_id"), edgesTable.C("dst_id")),
			entsql.ColumnsEQ(survivorOutTable.C("kind"), edgesTable.C("kind")),
		))

	query, args = s.client.builder().Delete("topic_edges").
		Where(entsql.And(
			entsql.EQ("tenant_id", tenantID),
			entsql.EQ("src_id", fromID),
			entsql.Exists(survivorOut),
		)).
		Query()

	if _, err := s.client.conn.ExecContext(ctx, query, args...); err != nil {
		return err
	}

	survivorInTable := entsql.Select("src_id", "kind").
		From(entsql.Table("topic_edges")).
		Where(entsql.And(entsql.EQ("tenant_id", tenantID), entsql.EQ("dst_id", toID))).
		As("survivor_in")
	survivorIn := entsql.Select("src_id").
		From(survivorInTable).
		Where(entsql.And(
			entsql.ColumnsEQ(survivorInTable.C("src_id"), edgesTable.C("src_id")),
			entsql.ColumnsEQ(survivorInTable.C("kind"), edgesTable.C("kind")),
		))

	query, args = s.client.builder().Delete("topic_edges").
		Where(entsql.And(
			entsql.EQ("tenant_id", tenantID),
			entsql.EQ("dst_id", fromID),
			entsql.Exists(survivorIn),
		)).
		Query()

	if _, err := s.client.conn.ExecContext(ctx, query, args...); err != nil {
		return err
	}

	query, args = s.client.builder().Update("topic_edges").
		Set("src_id", toID).
		Where(entsql.And(entsql.EQ("tenant_id", tenantID), entsql.EQ("src_id", fromID))).
		Query()

	if _, err := s.client.conn.ExecContext(ctx, query, args...); err != nil {
		return err
	}

	query, args = s.client.builder().Update("topic_edges").
		Set("dst_id", toID).
		Where(entsql.And(entsql.EQ("tenant_id", tenantID), entsql.EQ("dst_id", fromID))).
		Query()

	if _, err := s.client.conn.ExecContext(ctx, query, args...); err != nil {
		return err
	}

	// Self-loops produced by repointing are meaningless; drop them.
	query, args = s.client.builder().Delete("topic_edges").
		Where(entsql.And(
			entsql.EQ("tenant_id", tenantID),
			entsql.ColumnsEQ("src_id", "dst_id"),
		)).
		Query()

	_, err := s.client.conn.ExecContext(ctx, query, args...)

	return err
}
