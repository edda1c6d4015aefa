package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// Topic is the persisted topic row. Payload holds a sealed envelope;
// every other column is structural and queryable without a key.
type Topic struct {
	ID                int
	TenantID          int
	UserID            string
	Payload           []byte
	Embedding         []byte
	Importance        float64
	ExtractionVersion int
	Orphaned          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

type TopicStore struct {
	client *Client
}

var topicColumns = []string{
	"id", "tenant_id", "user_id", "payload", "embedding", "importance",
	"extraction_version", "orphaned", "created_at", "updated_at", "deleted_at",
}

func (s *TopicStore) scan(row interface{ Scan(...any) error }) (*Topic, error) {
	var (
		t                    Topic
		createdAt, updatedAt int64
		deletedAt            sql.NullInt64
	)

	err := row.Scan(
		&t.ID, &t.TenantID, &t.UserID, &t.Payload, &t.Embedding, &t.Importance,
		&t.ExtractionVersion, &t.Orphaned, &createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	t.CreatedAt = unixToTime(createdAt)
	t.UpdatedAt = unixToTime(updatedAt)
	t.DeletedAt = nullableTime(deletedAt)

	return &t, nil
}

func (s *TopicStore) queryMany(ctx context.Context, query string, args []any) ([]*Topic, error) {
	rows, err := s.client.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []*Topic

	for rows.Next() {
		t, err := s.scan(rows)
		if err != nil {
			return nil, err
		}

		topics = append(topics, t)
	}

	return topics, rows.Err()
}

func (s *TopicStore) Create(ctx context.Context, t *Topic) (int, error) {
	now := time.Now().UTC().Truncate(time.Second)

	b := s.client.builder().Insert("topics").
		Columns("tenant_id", "user_id", "payload", "embedding", "importance",
			"extraction_version", "orphaned", "created_at", "updated_at").
		Values(t.TenantID, t.UserID, t.Payload, t.Embedding, t.Importance,
			t.ExtractionVersion, t.Orphaned, now.Unix(), now.Unix())

	id, err := s.client.insertID(ctx, b)
	if err != nil {
		return 0, err
	}

	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now

	return id, nil
}

// ByID returns the row scoped to a tenant, soft-deleted rows included.
// Callers that must exclude deleted rows check DeletedAt.
func (s *TopicStore) ByID(ctx context.Context, tenantID, id int) (*Topic, error) {
	query, args := s.client.builder().Select(topicColumns...).
		From(entsql.Table("topics")).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("tenant_id", tenantID))).
		Query()

	return s.scan(s.client.conn.QueryRowContext(ctx, query, args...))
}

// Update rewrites a topic's payload and the structural fields that
// change with it. The payload is always a freshly sealed envelope.
func (s *TopicStore) Update(ctx context.Context, t *Topic) error {
	query, args := s.client.builder().Update("topics").
		Set("payload", t.Payload).
		Set("embedding", t.Embedding).
		Set("importance", t.Importance).
		Set("extraction_version", t.ExtractionVersion).
		Set("orphaned", t.Orphaned).
		Set("updated_at", time.Now().UTC().Unix()).
		Where(entsql.And(entsql.EQ("id", t.ID), entsql.EQ("tenant_id", t.TenantID))).
		Query()

	res, err := s.client.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	return requireAffected(res)
}

// UpdatePayload rewrites only the sealed payload. Used by rotation so a
// failed entity keeps its old-format blob untouched.
func (s *TopicStore) UpdatePayload(ctx context.Context, tenantID, id int, payload []byte) error {
	query, args := s.client.builder().Update("topics").
		Set("payload", payload).
		Set("updated_at", time.Now().UTC().Unix()).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("tenant_id", tenantID))).
		Query()

	res, err := s.client.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	return requireAffected(res)
}

// UpdateImportance is used by the decay job; it touches no payload bytes.
func (s *TopicStore) UpdateImportance(ctx context.Context, tenantID, id int, importance float64) error {
	query, args := s.client.builder().Update("topics").
		Set("importance", importance).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("tenant_id", tenantID))).
		Query()

	_, err := s.client.conn.ExecContext(ctx, query, args...)

	return err
}

func (s *TopicStore) SetOrphaned(ctx context.Context, tenantID, id int, orphaned bool) error {
	query, args := s.client.builder().Update("topics").
		Set("orphaned", orphaned).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("tenant_id", tenantID))).
		Query()

	_, err := s.client.conn.ExecContext(ctx, query, args...)

	return err
}

func (s *TopicStore) SoftDelete(ctx context.Context, tenantID, id int) error {
	now := time.Now().UTC().Unix()

	query, args := s.client.builder().Update("topics").
		Set("deleted_at", now).
		Set("updated_at", now).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("tenant_id", tenantID),
			entsql.IsNull("deleted_at"),
		)).
		Query()

	res, err := s.client.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	return requireAffected(res)
}

// ListLive returns a tenant's non-deleted topics ordered by importance.
func (s *TopicStore) ListLive(ctx context.Context, tenantID int) ([]*Topic, error) {
	query, args := s.client.builder().Select(topicColumns...).
		From(entsql.Table("topics")).
		Where(entsql.And(entsql.EQ("tenant_id", tenantID), entsql.IsNull("deleted_at"))).
		OrderBy(entsql.Desc("importance"), "id").
		Query()

	return s.queryMany(ctx, query, args)
}

// ListLiveByUser scopes ListLive to one owner.
func (s *TopicStore) ListLiveByUser(ctx context.Context, tenantID int, userID string) ([]*Topic, error) {
	query, args := s.client.builder().Select(topicColumns...).
		From(entsql.Table("topics")).
		Where(entsql.And(
			entsql.EQ("tenant_id", tenantID),
			entsql.EQ("user_id", userID),
			entsql.IsNull("deleted_at"),
		)).
		OrderBy(entsql.Desc("importance"), "id").
		Query()

	return s.queryMany(ctx, query, args)
}

// ListUpdatedBefore returns live topics untouched since the cutoff, for
// the decay job.
func (s *TopicStore) ListUpdatedBefore(ctx context.Context, tenantID int, cutoff time.Time) ([]*Topic, error) {
	query, args := s.client.builder().Select(topicColumns...).
		From(entsql.Table("topics")).
		Where(entsql.And(
			entsql.EQ("tenant_id", tenantID),
			entsql.IsNull("deleted_at"),
			entsql.LT("updated_at", cutoff.Unix()),
		)).
		OrderBy("id").
		Query()

	return s.queryMany(ctx, query, args)
}

// ListWithoutAnchor returns live topics that have no anchor row yet,
// for the anchor scan to seed regeneration.
func (s *TopicStore) ListWithoutAnchor(ctx context.Context, tenantID int) ([]*Topic, error) {
	anchorsTable := entsql.Table("anchors")
	topicsTable := entsql.Table("topics")
	anchored := entsql.Select("id").
		From(anchorsTable).
		Where(entsql.ColumnsEQ(anchorsTable.C("topic_id"), topicsTable.C("id")))

	query, args := s.client.builder().Select(topicColumns...).
		From(topicsTable).
		Where(entsql.And(
			entsql.EQ("tenant_id", tenantID),
			entsql.IsNull("deleted_at"),
			entsql.NotExists(anchored),
		)).
		OrderBy("id").
		Query()

	return s.queryMany(ctx, query, args)
}

// ListExtractionBehind returns live topics whose extraction version
// trails the given current version.
func (s *TopicStore) ListExtractionBehind(ctx context.Context, tenantID, version int) ([]*Topic, error) {
	query, args := s.client.builder().Select(topicColumns...).
		From(entsql.Table("topics")).
		Where(entsql.And(
			entsql.EQ("tenant_id", tenantID),
			entsql.IsNull("deleted_at"),
			entsql.LT("extraction_version", version),
		)).
		OrderBy("id").
		Query()

	return s.queryMany(ctx, query, args)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return ErrNotFound
	}

	return nil
}
