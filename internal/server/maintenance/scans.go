package maintenance

import (
	"context"

	"github.com/looplj/memvault/internal/log"
	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/server/biz"
	"github.com/looplj/memvault/internal/store"
)

// runExtractionScan enqueues re-extraction for topics whose extraction
// version trails the current extractor. The scan reads version columns
// only; the re-extraction itself waits for a key window.
func (w *Worker) runExtractionScan(ctx context.Context, tenantID int) error {
	client := store.FromContext(ctx)

	topics, err := client.Topics.ListExtractionBehind(ctx, tenantID, biz.ExtractionVersion)
	if err != nil {
		return err
	}

	enqueued := 0

	for _, topic := range topics {
		_, created, err := w.QueueService.Enqueue(ctx, tenantID, objects.ActionReExtraction, []int{topic.ID})
		if err != nil {
			return err
		}

		if created {
			enqueued++
		}
	}

	if enqueued > 0 {
		log.Info(ctx, "re-extractions enqueued",
			log.Int("tenant_id", tenantID),
			log.Int("topics", enqueued),
		)
	}

	return nil
}

// runAnchorScan enqueues anchor-regeneration for stale anchors and for
// live topics that never got an anchor row.
func (w *Worker) runAnchorScan(ctx context.Context, tenantID int) error {
	client := store.FromContext(ctx)

	anchors, err := client.Anchors.ListStale(ctx, tenantID)
	if err != nil {
		return err
	}

	enqueued := 0

	unanchored, err := client.Topics.ListWithoutAnchor(ctx, tenantID)
	if err != nil {
		return err
	}

	for _, topic := range unanchored {
		_, created, err := w.QueueService.Enqueue(ctx, tenantID, objects.ActionAnchorRegeneration, []int{topic.ID})
		if err != nil {
			return err
		}

		if created {
			enqueued++
		}
	}

	for _, anchor := range anchors {
		topic, err := client.Topics.ByID(ctx, tenantID, anchor.TopicID)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}

			return err
		}

		// Anchors of tombstoned topics have nothing to regenerate from.
		if topic.DeletedAt != nil {
			continue
		}

		_, created, err := w.QueueService.Enqueue(ctx, tenantID, objects.ActionAnchorRegeneration, []int{anchor.TopicID})
		if err != nil {
			return err
		}

		if created {
			enqueued++
		}
	}

	if enqueued > 0 {
		log.Info(ctx, "anchor regenerations enqueued",
			log.Int("tenant_id", tenantID),
			log.Int("anchors", enqueued),
		)
	}

	return nil
}
