package biz

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	"github.com/looplj/memvault/internal/keyring"
	"github.com/looplj/memvault/internal/log"
	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/store"
)

type RotationServiceParams struct {
	fx.In

	Store *store.Client
}

func NewRotationService(params RotationServiceParams) *RotationService {
	return &RotationService{
		AbstractService: &AbstractService{db: params.Store},
	}
}

// RotationService re-encrypts a tenant's payloads from one key to
// another. Atomicity is per entity: each row is re-sealed in its own
// transaction, so a failure mid-pass leaves every row readable under
// exactly one of the two keys, never corrupt.
type RotationService struct {
	*AbstractService
}

// Rotate opens every live payload with the old key and reseals it with
// the new one. Per-row failures are aggregated; the pass keeps going so
// a retry only has the leftovers.
func (s *RotationService) Rotate(ctx context.Context, oldCarrier, newCarrier *keyring.Carrier, tenantID int) (*objects.RotationResult, error) {
	if oldCarrier == nil || newCarrier == nil {
		return nil, ErrKeyMissing
	}

	result := &objects.RotationResult{}

	var errs *multierror.Error

	topics, err := s.storeFromContext(ctx).Topics.ListLive(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	for _, row := range topics {
		err := s.RunInTransaction(ctx, func(txCtx context.Context) error {
			var content objects.TopicContent

			if err := openPayload(txCtx, oldCarrier, row.Payload, &content); err != nil {
				return err
			}

			blob, err := sealPayload(txCtx, newCarrier, content)
			if err != nil {
				return err
			}

			return s.storeFromContext(txCtx).Topics.UpdatePayload(txCtx, tenantID, row.ID, blob)
		})
		if err != nil {
			result.Failed++

			errs = multierror.Append(errs, fmt.Errorf("topic %d: %w", row.ID, err))

			continue
		}

		result.TopicsRotated++
	}

	anchors, err := s.storeFromContext(ctx).Anchors.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	for _, row := range anchors {
		err := s.RunInTransaction(ctx, func(txCtx context.Context) error {
			var card objects.AnchorCard

			if err := openPayload(txCtx, oldCarrier, row.Payload, &card); err != nil {
				return err
			}

			blob, err := sealPayload(txCtx, newCarrier, card)
			if err != nil {
				return err
			}

			return s.storeFromContext(txCtx).Anchors.UpdatePayload(txCtx, tenantID, row.ID, blob)
		})
		if err != nil {
			result.Failed++

			errs = multierror.Append(errs, fmt.Errorf("anchor %d: %w", row.ID, err))

			continue
		}

		result.AnchorsRotated++
	}

	for _, err := range errs.WrappedErrors() {
		result.Errors = append(result.Errors, err.Error())
	}

	log.Info(ctx, "key rotation finished",
		log.Int("tenant_id", tenantID),
		log.Int("topics_rotated", result.TopicsRotated),
		log.Int("anchors_rotated", result.AnchorsRotated),
		log.Int("failed", result.Failed),
	)

	return result, nil
}
