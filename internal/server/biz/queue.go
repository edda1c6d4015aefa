package biz

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/fx"

	"github.com/looplj/memvault/internal/log"
	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/store"
)

// QueueConfig bounds retry behavior for deferred actions.
type QueueConfig struct {
	MaxAttempts int `conf:"max_attempts" yaml:"max_attempts" json:"max_attempts"`
}

type QueueServiceParams struct {
	fx.In

	Store  *store.Client
	Config QueueConfig
}

func NewQueueService(params QueueServiceParams) *QueueService {
	maxAttempts := params.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	return &QueueService{
		AbstractService: &AbstractService{db: params.Store},
		maxAttempts:     maxAttempts,
	}
}

// QueueService is the pending action queue: durable deferred work whose
// execution needs a key the server does not hold. Rows are structural;
// the queue knows kinds and target ids, never content.
type QueueService struct {
	*AbstractService

	maxAttempts int
}

// Enqueue records deferred work for a tenant. Enqueueing work identical
// to an outstanding action is a no-op returning the existing row.
func (s *QueueService) Enqueue(ctx context.Context, tenantID int, kind objects.ActionKind, targetIDs []int) (*objects.PendingAction, bool, error) {
	if !kind.Valid() {
		return nil, false, fmt.Errorf("invalid action kind: %s", kind)
	}

	if len(targetIDs) == 0 {
		return nil, false, fmt.Errorf("action targets are required")
	}

	row, created, err := s.storeFromContext(ctx).Actions.Insert(
		ctx, tenantID, string(kind), targetIDs, Fingerprint(tenantID, kind, targetIDs),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to enqueue action: %w", err)
	}

	if created {
		log.Debug(ctx, "action enqueued",
			log.Int("tenant_id", tenantID),
			log.String("kind", string(kind)),
			log.Int("action_id", row.ID),
		)
	}

	return toAction(row), created, nil
}

// ClaimAll claims up to limit of the tenant's oldest pending actions
// under a fresh claim token. At most one claimer holds a tenant at a
// time; losing the race returns store.ErrClaimConflict, which callers
// treat as nothing-to-do.
func (s *QueueService) ClaimAll(ctx context.Context, tenantID, limit int) ([]*objects.PendingAction, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.storeFromContext(ctx).Actions.Claim(ctx, tenantID, uuid.NewString(), limit)
	if err != nil {
		return nil, err
	}

	actions := make([]*objects.PendingAction, 0, len(rows))
	for _, row := range rows {
		actions = append(actions, toAction(row))
	}

	return actions, nil
}

func (s *QueueService) MarkDone(ctx context.Context, id int) error {
	return s.storeFromContext(ctx).Actions.MarkDone(ctx, id)
}

// MarkFailed records the failure cause and either requeues the action or
// retires it to terminal failed once the attempt bound is exhausted.
func (s *QueueService) MarkFailed(ctx context.Context, id int, cause string) error {
	return s.storeFromContext(ctx).Actions.MarkFailed(ctx, id, cause, s.maxAttempts)
}

// Requeue resets a terminal failed action to pending with a fresh
// attempt budget. Admin-only manual intervention.
func (s *QueueService) Requeue(ctx context.Context, id int) error {
	if err := s.storeFromContext(ctx).Actions.Requeue(ctx, id); err != nil {
		return err
	}

	log.Info(ctx, "action requeued", log.Int("action_id", id))

	return nil
}

// List returns actions filtered by tenant and/or status for review.
func (s *QueueService) List(ctx context.Context, tenantID int, status objects.ActionStatus) ([]*objects.PendingAction, error) {
	rows, err := s.storeFromContext(ctx).Actions.List(ctx, tenantID, string(status))
	if err != nil {
		return nil, err
	}

	actions := make([]*objects.PendingAction, 0, len(rows))
	for _, row := range rows {
		actions = append(actions, toAction(row))
	}

	return actions, nil
}

// CountPending reports how many actions still await the tenant's next
// key window.
func (s *QueueService) CountPending(ctx context.Context, tenantID int) (int, error) {
	counts, err := s.storeFromContext(ctx).Actions.CountByStatus(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	return counts[store.ActionStatusPending], nil
}

// Fingerprint identifies a unit of deferred work regardless of target
// order, for dedup among outstanding actions.
func Fingerprint(tenantID int, kind objects.ActionKind, targetIDs []int) uint64 {
	sorted := append([]int(nil), targetIDs...)
	sort.Ints(sorted)

	var b strings.Builder

	b.WriteString(strconv.Itoa(tenantID))
	b.WriteByte('|')
	b.WriteString(string(kind))

	for _, id := range sorted {
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(id))
	}

	return xxhash.Sum64String(b.String())
}

func toAction(row *store.PendingAction) *objects.PendingAction {
	return &objects.PendingAction{
		ID:        row.ID,
		TenantID:  row.TenantID,
		Kind:      objects.ActionKind(row.Kind),
		TargetIDs: row.TargetIDs,
		Status:    objects.ActionStatus(row.Status),
		Attempts:  row.Attempts,
		LastError: row.LastError,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
