package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// Anchor is the persisted anchor row; one per (tenant, topic, user).
type Anchor struct {
	ID        int
	TenantID  int
	UserID    string
	TopicID   int
	Payload   []byte
	Stale     bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type AnchorStore struct {
	client *Client
}

var anchorColumns = []string{"id", "tenant_id", "user_id", "topic_id", "payload", "stale", "created_at", "updated_at"}

func (s *AnchorStore) scan(row interface{ Scan(...any) error }) (*Anchor, error) {
	var (
		a                    Anchor
		createdAt, updatedAt int64
	)

	err := row.Scan(&a.ID, &a.TenantID, &a.UserID, &a.TopicID, &a.Payload, &a.Stale, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	a.CreatedAt = unixToTime(createdAt)
	a.UpdatedAt = unixToTime(updatedAt)

	return &a, nil
}

func (s *AnchorStore) queryMany(ctx context.Context, query string, args []any) ([]*Anchor, error) {
	rows, err := s.client.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var anchors []*Anchor

	for rows.Next() {
		a, err := s.scan(rows)
		if err != nil {
			return nil, err
		}

		anchors = append(anchors, a)
	}

	return anchors, rows.Err()
}

// Upsert writes the sealed anchor payload for (topic, user), clearing
// the stale flag.
func (s *AnchorStore) Upsert(ctx context.Context, tenantID int, topicID int, userID string, payload []byte) (*Anchor, error) {
	existing, err := s.ByTopicUser(ctx, tenantID, topicID, userID)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Second)

	if existing != nil {
		query, args := s.client.builder().Update("anchors").
			Set("payload", payload).
			Set("stale", false).
			Set("updated_at", now.Unix()).
			Where(entsql.EQ("id", existing.ID)).
			Query()

		if _, err := s.client.conn.ExecContext(ctx, query, args...); err != nil {
			return nil, err
		}

		existing.Payload = payload
		existing.Stale = false
		existing.UpdatedAt = now

		return existing, nil
	}

	b := s.client.builder().Insert("anchors").
		Columns("tenant_id", "user_id", "topic_id", "payload", "stale", "created_at", "updated_at").
		Values(tenantID, userID, topicID, payload, false, now.Unix(), now.Unix())

	id, err := s.client.insertID(ctx, b)
	if err != nil {
		return nil, err
	}

	return &Anchor{
		ID:        id,
		TenantID:  tenantID,
		UserID:    userID,
		TopicID:   topicID,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *AnchorStore) ByTopicUser(ctx context.Context, tenantID, topicID int, userID string) (*Anchor, error) {
	query, args := s.client.builder().Select(anchorColumns...).
		From(entsql.Table("anchors")).
		Where(entsql.And(
			entsql.EQ("tenant_id", tenantID),
			entsql.EQ("topic_id", topicID),
			entsql.EQ("user_id", userID),
		)).
		Query()

	return s.scan(s.client.conn.QueryRowContext(ctx, query, args...))
}

func (s *AnchorStore) ListByUser(ctx context.Context, tenantID int, userID string) ([]*Anchor, error) {
	query, args := s.client.builder().Select(anchorColumns...).
		From(entsql.Table("anchors")).
		Where(entsql.And(entsql.EQ("tenant_id", tenantID), entsql.EQ("user_id", userID))).
		OrderBy("id").
		Query()

	return s.queryMany(ctx, query, args)
}

func (s *AnchorStore) ListByTenant(ctx context.Context, tenantID int) ([]*Anchor, error) {
	query, args := s.client.builder().Select(anchorColumns...).
		From(entsql.Table("anchors")).
		Where(entsql.EQ("tenant_id", tenantID)).
		OrderBy("id").
		Query()

	return s.queryMany(ctx, query, args)
}

// ListStale returns anchors flagged for regeneration.
func (s *AnchorStore) ListStale(ctx context.Context, tenantID int) ([]*Anchor, error) {
	query, args := s.client.builder().Select(anchorColumns...).
		From(entsql.Table("anchors")).
		Where(entsql.And(entsql.EQ("tenant_id", tenantID), entsql.EQ("stale", true))).
		OrderBy("id").
		Query()

	return s.queryMany(ctx, query, args)
}

// MarkStaleByTopic flags every anchor of a topic for regeneration.
func (s *AnchorStore) MarkStaleByTopic(ctx context.Context, tenantID, topicID int) error {
	query, args := s.client.builder().Update("anchors").
		Set("stale", true).
		Set("updated_at", time.Now().UTC().Unix()).
		Where(entsql.And(entsql.EQ("tenant_id", tenantID), entsql.EQ("topic_id", topicID))).
		Query()

	_, err := s.client.conn.ExecContext(ctx, query, args...)

	return err
}

// UpdatePayload rewrites only the sealed payload, for rotation.
func (s *AnchorStore) UpdatePayload(ctx context.Context, tenantID, id int, payload []byte) error {
	query, args := s.client.builder().Update("anchors").
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
