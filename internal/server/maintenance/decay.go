package maintenance

import (
	"context"
	"math"
	"time"

	"github.com/looplj/memvault/internal/log"
	"github.com/looplj/memvault/internal/store"
)

// runDecay applies exponential importance decay to topics untouched for
// the idle threshold. The per-run factor is derived from the run
// interval and the half-life; the decay is computed in Go because the
// sqlite backend has no pow(). Payload bytes are never read or written.
func (w *Worker) runDecay(ctx context.Context, tenantID int) error {
	client := store.FromContext(ctx)
	cutoff := time.Now().Add(-w.Config.DecayIdle)

	topics, err := client.Topics.ListUpdatedBefore(ctx, tenantID, cutoff)
	if err != nil {
		return err
	}

	factor := math.Pow(0.5, w.Config.DecayInterval.Hours()/w.Config.DecayHalfLife.Hours())
	decayed := 0

	for _, topic := range topics {
		next := topic.Importance * factor
		if next < w.Config.DecayFloor {
			next = w.Config.DecayFloor
		}

		if next == topic.Importance {
			continue
		}

		if err := client.Topics.UpdateImportance(ctx, tenantID, topic.ID, next); err != nil {
			return err
		}

		decayed++
	}

	if decayed > 0 {
		log.Debug(ctx, "importance decayed",
			log.Int("tenant_id", tenantID),
			log.Int("topics", decayed),
		)
	}

	return nil
}
