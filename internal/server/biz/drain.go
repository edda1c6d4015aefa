package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/looplj/memvault/internal/keyring"
	"github.com/looplj/memvault/internal/log"
	"github.com/looplj/memvault/internal/metrics"
	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/store"
)

// DrainConfig bounds one opportunistic drain pass. Leftover work simply
// waits for the tenant's next key window.
type DrainConfig struct {
	MaxActions int           `conf:"max_actions" yaml:"max_actions" json:"max_actions"`
	Budget     time.Duration `conf:"budget" yaml:"budget" json:"budget"`
}

type DrainServiceParams struct {
	fx.In

	Store         *store.Client
	Config        DrainConfig
	QueueService  *QueueService
	TopicService  *TopicService
	AnchorService *AnchorService
}

func NewDrainService(params DrainServiceParams) *DrainService {
	cfg := params.Config
	if cfg.MaxActions <= 0 {
		cfg.MaxActions = 10
	}

	if cfg.Budget <= 0 {
		cfg.Budget = 2 * time.Second
	}

	return &DrainService{
		AbstractService: &AbstractService{db: params.Store},
		config:          cfg,
		QueueService:    params.QueueService,
		TopicService:    params.TopicService,
		AnchorService:   params.AnchorService,
	}
}

// DrainService is the opportunistic job runner: it executes queued
// content-dependent actions inside a live request's key window, after
// the primary work succeeded and before the carrier is destroyed. It is
// the only execution path for such actions.
type DrainService struct {
	*AbstractService

	config        DrainConfig
	QueueService  *QueueService
	TopicService  *TopicService
	AnchorService *AnchorService
}

// Drain claims and executes the tenant's oldest pending actions within
// the configured budget. Action failures are recorded on the action and
// never propagate: the primary response is already decided.
func (s *DrainService) Drain(ctx context.Context, carrier *keyring.Carrier, tenantID int) (*objects.DrainResult, error) {
	if carrier == nil {
		return nil, ErrKeyMissing
	}

	started := time.Now()

	actions, err := s.QueueService.ClaimAll(ctx, tenantID, s.config.MaxActions)
	if err != nil {
		if errors.Is(err, store.ErrClaimConflict) {
			// Another request is already draining this tenant.
			return &objects.DrainResult{}, nil
		}

		return nil, err
	}

	result := &objects.DrainResult{}
	deadline := started.Add(s.config.Budget)

	for i, action := range actions {
		if time.Now().After(deadline) || ctx.Err() != nil {
			s.release(ctx, actions[i:])
			break
		}

		if err := s.execute(ctx, carrier, action); err != nil {
			result.Failed++

			log.Warn(ctx, "action failed",
				log.Int("action_id", action.ID),
				log.String("kind", string(action.Kind)),
				log.Int("tenant_id", tenantID),
				log.Cause(err),
			)

			if err := s.QueueService.MarkFailed(ctx, action.ID, err.Error()); err != nil {
				log.Error(ctx, "failed to mark action failed", log.Int("action_id", action.ID), log.Cause(err))
			}

			continue
		}

		result.Drained++

		if err := s.QueueService.MarkDone(ctx, action.ID); err != nil {
			log.Error(ctx, "failed to mark action done", log.Int("action_id", action.ID), log.Cause(err))
		}
	}

	left, err := s.QueueService.CountPending(ctx, tenantID)
	if err == nil {
		result.Left = left
	}

	metrics.RecordDrain(ctx, result.Drained, result.Failed, time.Since(started))

	if result.Drained > 0 || result.Failed > 0 {
		log.Info(ctx, "queue drained",
			log.Int("tenant_id", tenantID),
			log.Int("drained", result.Drained),
			log.Int("failed", result.Failed),
			log.Int("left", result.Left),
		)
	}

	return result, nil
}

func (s *DrainService) release(ctx context.Context, actions []*objects.PendingAction) {
	for _, action := range actions {
		if err := s.storeFromContext(ctx).Actions.Release(ctx, action.ID); err != nil {
			log.Error(ctx, "failed to release claimed action", log.Int("action_id", action.ID), log.Cause(err))
		}
	}
}

// execute dispatches one action. The kind set is closed; an unknown kind
// is a terminal data error, not a hook point.
func (s *DrainService) execute(ctx context.Context, carrier *keyring.Carrier, action *objects.PendingAction) error {
	switch action.Kind {
	case objects.ActionMergeExecution:
		if len(action.TargetIDs) != 2 {
			return fmt.Errorf("%w: merge-execution expects [survivor, merged], got %d targets", ErrActionExecutionFailed, len(action.TargetIDs))
		}

		return s.executeMerge(ctx, carrier, action.TenantID, action.TargetIDs[0], action.TargetIDs[1])
	case objects.ActionReExtraction:
		if len(action.TargetIDs) != 1 {
			return fmt.Errorf("%w: re-extraction expects one target", ErrActionExecutionFailed)
		}

		return s.executeReExtraction(ctx, carrier, action.TenantID, action.TargetIDs[0])
	case objects.ActionAnchorRegeneration:
		if len(action.TargetIDs) != 1 {
			return fmt.Errorf("%w: anchor-regeneration expects one target", ErrActionExecutionFailed)
		}

		return s.AnchorService.Regenerate(ctx, carrier, action.TenantID, action.TargetIDs[0])
	default:
		return fmt.Errorf("%w: unknown action kind %q", ErrActionExecutionFailed, action.Kind)
	}
}

// executeMerge folds the merged topic into the survivor: union entities,
// concatenated summaries, survivor title kept. Content changes and the
// structural cleanup (tombstone, edge re-pointing) commit together.
func (s *DrainService) executeMerge(ctx context.Context, carrier *keyring.Carrier, tenantID, survivorID, mergedID int) error {
	return s.RunInTransaction(ctx, func(txCtx context.Context) error {
		survivor, err := s.TopicService.ReadDecrypted(txCtx, carrier, tenantID, survivorID)
		if err != nil {
			return err
		}

		merged, err := s.TopicService.ReadDecrypted(txCtx, carrier, tenantID, mergedID)
		if err != nil {
			return err
		}

		survivor.Content.Entities = mergeEntities(survivor.Content.Entities, merged.Content.Entities)

		if merged.Content.Summary != "" && merged.Content.Summary != survivor.Content.Summary {
			if survivor.Content.Summary != "" {
				survivor.Content.Summary += "\n\n"
			}

			survivor.Content.Summary += merged.Content.Summary
		}

		if survivor.Importance < merged.Importance {
			survivor.Importance = merged.Importance
		}

		if err := s.TopicService.WriteEncrypted(txCtx, carrier, survivor); err != nil {
			return err
		}

		if err := s.TopicService.SoftDelete(txCtx, tenantID, mergedID); err != nil {
			return err
		}

		return s.storeFromContext(txCtx).Edges.Repoint(txCtx, tenantID, mergedID, survivorID)
	})
}

// executeReExtraction re-derives entities from the stored source text
// with the current extractor and stamps the topic with its version.
func (s *DrainService) executeReExtraction(ctx context.Context, carrier *keyring.Carrier, tenantID, topicID int) error {
	return s.RunInTransaction(ctx, func(txCtx context.Context) error {
		topic, err := s.TopicService.ReadDecrypted(txCtx, carrier, tenantID, topicID)
		if err != nil {
			return err
		}

		if topic.Content.Source != "" {
			topic.Content.Entities = ExtractEntities(topic.Content.Source)
		}

		topic.ExtractionVersion = ExtractionVersion

		return s.TopicService.WriteEncrypted(txCtx, carrier, topic)
	})
}
