package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// Action statuses. Pending and in_progress are claimable states; done
// and failed are terminal.
const (
	ActionStatusPending    = "pending"
	ActionStatusInProgress = "in_progress"
	ActionStatusDone       = "done"
	ActionStatusFailed     = "failed"
)

// PendingAction is the persisted deferred-work row. LastError carries a
// structural message only; target ids are a JSON int array.
type PendingAction struct {
	ID          int
	TenantID    int
	Kind        string
	TargetIDs   []int
	Fingerprint uint64
	Status      string
	Attempts    int
	ClaimToken  string
	ClaimedAt   *time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ActionStore struct {
	client *Client
}

var actionColumns = []string{
	"id", "tenant_id", "kind", "target_ids", "fingerprint", "status",
	"attempts", "claim_token", "claimed_at", "last_error", "created_at", "updated_at",
}

func (s *ActionStore) scan(row interface{ Scan(...any) error }) (*PendingAction, error) {
	var (
		a                    PendingAction
		targetIDs            string
		fingerprint          int64
		claimToken           sql.NullString
		claimedAt            sql.NullInt64
		lastError            sql.NullString
		createdAt, updatedAt int64
	)

	err := row.Scan(
		&a.ID, &a.TenantID, &a.Kind, &targetIDs, &fingerprint, &a.Status,
		&a.Attempts, &claimToken, &claimedAt, &lastError, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	if err := json.Unmarshal([]byte(targetIDs), &a.TargetIDs); err != nil {
		return nil, fmt.Errorf("malformed target ids on action %d: %w", a.ID, err)
	}

	a.Fingerprint = uint64(fingerprint)
	a.ClaimToken = nullableString(claimToken)
	a.ClaimedAt = nullableTime(claimedAt)
	a.LastError = nullableString(lastError)
	a.CreatedAt = unixToTime(createdAt)
	a.UpdatedAt = unixToTime(updatedAt)

	return &a, nil
}

func (s *ActionStore) queryMany(ctx context.Context, query string, args []any) ([]*PendingAction, error) {
	rows, err := s.client.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*PendingAction

	for rows.Next() {
		a, err := s.scan(rows)
		if err != nil {
			return nil, err
		}

		actions = append(actions, a)
	}

	return actions, rows.Err()
}

// Insert creates a pending action unless an identical non-terminal one
// (same fingerprint) is already outstanding; in that case the existing
// row is returned and created reports false.
//
// The dedup is check-then-insert without a backing unique index (a
// partial index over non-terminal rows is not portable to mysql), so
// two racing Enqueues of the same work can both land. A duplicate row
// cannot corrupt anything: re-running an action either reapplies the
// same content (re-extraction, anchor regeneration) or fails on the
// already-merged topic and is marked failed without touching data.
func (s *ActionStore) Insert(ctx context.Context, tenantID int, kind string, targetIDs []int, fingerprint uint64) (action *PendingAction, created bool, err error) {
	existing, err := s.byFingerprint(ctx, tenantID, fingerprint)
	if err != nil && !IsNotFound(err) {
		return nil, false, err
	}

	if existing != nil {
		return existing, false, nil
	}

	targets, err := json.Marshal(targetIDs)
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC().Truncate(time.Second)

	b := s.client.builder().Insert("pending_actions").
		Columns("tenant_id", "kind", "target_ids", "fingerprint", "status", "attempts", "created_at", "updated_at").
		Values(tenantID, kind, string(targets), int64(fingerprint), ActionStatusPending, 0, now.Unix(), now.Unix())

	id, err := s.client.insertID(ctx, b)
	if err != nil {
		return nil, false, err
	}

	return &PendingAction{
		ID:          id,
		TenantID:    tenantID,
		Kind:        kind,
		TargetIDs:   targetIDs,
		Fingerprint: fingerprint,
		Status:      ActionStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, true, nil
}

// byFingerprint finds a non-terminal action with the given fingerprint.
func (s *ActionStore) byFingerprint(ctx context.Context, tenantID int, fingerprint uint64) (*PendingAction, error) {
	query, args := s.client.builder().Select(actionColumns...).
		From(entsql.Table("pending_actions")).
		Where(entsql.And(
			entsql.EQ("tenant_id", tenantID),
			entsql.EQ("fingerprint", int64(fingerprint)),
			entsql.In("status", ActionStatusPending, ActionStatusInProgress),
		)).
		Limit(1).
		Query()

	return s.scan(s.client.conn.QueryRowContext(ctx, query, args...))
}

// Claim atomically stamps the oldest pending actions of a tenant with
// the claim token and transitions them to in_progress — but only when no
// other action of that tenant is currently in_progress. This single
// conditional UPDATE is the at-most-one-claimer-per-tenant discipline:
// concurrent claimers race on it and exactly one can win.
//
// It returns ErrClaimConflict when nothing was stamped because another
// claimer holds the tenant, and the claimed actions (in enqueue order)
// otherwise. Zero pending rows yields an empty slice, not an error.
func (s *ActionStore) Claim(ctx context.Context, tenantID int, token string, limit int) ([]*PendingAction, error) {
	now := time.Now().UTC().Unix()

	// Both subqueries read the update target, which MySQL rejects
	// unless they go through a materialized derived table. They are
	// uncorrelated, so the wrapping changes nothing semantically.
	inProgress := entsql.Select("id").
		From(entsql.Select("id").
			From(entsql.Table("pending_actions")).
			Where(entsql.And(
				entsql.EQ("tenant_id", tenantID),
				entsql.EQ("status", ActionStatusInProgress),
			)).
			As("held"))

	oldestPending := entsql.Select("id").
		From(entsql.Select("id").
			From(entsql.Table("pending_actions")).
			Where(entsql.And(
				entsql.EQ("tenant_id", tenantID),
				entsql.EQ("status", ActionStatusPending),
			)).
			OrderBy("id").
			Limit(limit).
			As("claimable"))

	query, args := s.client.builder().Update("pending_actions").
		Set("status", ActionStatusInProgress).
		Set("claim_token", token).
		Set("claimed_at", now).
		Set("updated_at", now).
		Where(entsql.And(
			entsql.EQ("tenant_id", tenantID),
			entsql.EQ("status", ActionStatusPending),
			entsql.NotExists(inProgress),
			entsql.In("id", oldestPending),
		)).
		Query()

	res, err := s.client.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	stamped, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if stamped == 0 {
		held, err := s.tenantHeld(ctx, tenantID)
		if err != nil {
			return nil, err
		}

		if held {
			return nil, ErrClaimConflict
		}

		return nil, nil
	}

	query, args = s.client.builder().Select(actionColumns...).
		From(entsql.Table("pending_actions")).
		Where(entsql.EQ("claim_token", token)).
		OrderBy("id").
		Query()

	return s.queryMany(ctx, query, args)
}

func (s *ActionStore) tenantHeld(ctx context.Context, tenantID int) (bool, error) {
	query, args := s.client.builder().Select("id").
		From(entsql.Table("pending_actions")).
		Where(entsql.And(
			entsql.EQ("tenant_id", tenantID),
			entsql.EQ("status", ActionStatusInProgress),
		)).
		Limit(1).
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

func (s *ActionStore) ByID(ctx context.Context, id int) (*PendingAction, error) {
	query, args := s.client.builder().Select(actionColumns...).
		From(entsql.Table("pending_actions")).
		Where(entsql.EQ("id", id)).
		Query()

	return s.scan(s.client.conn.QueryRowContext(ctx, query, args...))
}

// MarkDone transitions a claimed action to its terminal done state. The
// row is kept for audit and excluded from future claims.
func (s *ActionStore) MarkDone(ctx context.Context, id int) error {
	query, args := s.client.builder().Update("pending_actions").
		Set("status", ActionStatusDone).
		Set("claim_token", nil).
		Set("updated_at", time.Now().UTC().Unix()).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("status", ActionStatusInProgress))).
		Query()

	res, err := s.client.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	return requireAffected(res)
}

// MarkFailed increments the attempt count and returns the action to
// pending, or to terminal failed once attempts exceed maxAttempts.
func (s *ActionStore) MarkFailed(ctx context.Context, id int, cause string, maxAttempts int) error {
	action, err := s.ByID(ctx, id)
	if err != nil {
		return err
	}

	status := ActionStatusPending
	if action.Attempts+1 >= maxAttempts {
		status = ActionStatusFailed
	}

	query, args := s.client.builder().Update("pending_actions").
		Set("status", status).
		Set("attempts", action.Attempts+1).
		Set("claim_token", nil).
		Set("last_error", cause).
		Set("updated_at", time.Now().UTC().Unix()).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("status", ActionStatusInProgress))).
		Query()

	res, err := s.client.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	return requireAffected(res)
}

// Release returns a claimed action to pending without an attempt
// increment: the claimer ran out of budget before reaching it.
func (s *ActionStore) Release(ctx context.Context, id int) error {
	query, args := s.client.builder().Update("pending_actions").
		Set("status", ActionStatusPending).
		Set("claim_token", nil).
		Set("updated_at", time.Now().UTC().Unix()).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("status", ActionStatusInProgress))).
		Query()

	res, err := s.client.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	return requireAffected(res)
}

// Requeue resets a terminal failed action for another round of
// attempts. Manual intervention path.
func (s *ActionStore) Requeue(ctx context.Context, id int) error {
	query, args := s.client.builder().Update("pending_actions").
		Set("status", ActionStatusPending).
		Set("attempts", 0).
		Set("last_error", nil).
		Set("updated_at", time.Now().UTC().Unix()).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("status", ActionStatusFailed))).
		Query()

	res, err := s.client.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	return requireAffected(res)
}

// List filters by tenant and/or status; zero values mean no filter.
func (s *ActionStore) List(ctx context.Context, tenantID int, status string) ([]*PendingAction, error) {
	sel := s.client.builder().Select(actionColumns...).
		From(entsql.Table("pending_actions")).
		OrderBy("id")

	var preds []*entsql.Predicate

	if tenantID > 0 {
		preds = append(preds, entsql.EQ("tenant_id", tenantID))
	}

	if status != "" {
		preds = append(preds, entsql.EQ("status", status))
	}

	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}

	query, args := sel.Query()

	return s.queryMany(ctx, query, args)
}

// RequeueStale reverts in_progress actions whose claim is older than
// the cutoff back to pending without an attempt increment: the claimer
// crashed, the work never ran.
func (s *ActionStore) RequeueStale(ctx context.Context, cutoff time.Time) (int, error) {
	query, args := s.client.builder().Update("pending_actions").
		Set("status", ActionStatusPending).
		Set("claim_token", nil).
		Set("updated_at", time.Now().UTC().Unix()).
		Where(entsql.And(
			entsql.EQ("status", ActionStatusInProgress),
			entsql.LT("claimed_at", cutoff.Unix()),
		)).
		Query()

	res, err := s.client.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()

	return int(n), err
}

// ExpireOlderThan moves pending actions enqueued before the cutoff to
// terminal failed. Tenants that never return would otherwise accumulate
// work forever.
func (s *ActionStore) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	query, args := s.client.builder().Update("pending_actions").
		Set("status", ActionStatusFailed).
		Set("last_error", "expired before any request could drain it").
		Set("updated_at", time.Now().UTC().Unix()).
		Where(entsql.And(
			entsql.EQ("status", ActionStatusPending),
			entsql.LT("created_at", cutoff.Unix()),
		)).
		Query()

	res, err := s.client.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()

	return int(n), err
}

// CountPendingAll returns the pending backlog across all tenants.
func (s *ActionStore) CountPendingAll(ctx context.Context) (int, error) {
	query, args := s.client.builder().Select("COUNT(*)").
		From(entsql.Table("pending_actions")).
		Where(entsql.EQ("status", ActionStatusPending)).
		Query()

	var n int

	row := s.client.conn.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}

	return n, nil
}

// CountByStatus returns the per-status row counts for a tenant.
func (s *ActionStore) CountByStatus(ctx context.Context, tenantID int) (map[string]int, error) {
	query, args := s.client.builder().Select("status", "COUNT(*)").
		From(entsql.Table("pending_actions")).
		Where(entsql.EQ("tenant_id", tenantID)).
		GroupBy("status").
		Query()

	rows, err := s.client.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)

	for rows.Next() {
		var (
			status string
			n      int
		)

		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}

		counts[status] = n
	}

	return counts, rows.Err()
}
