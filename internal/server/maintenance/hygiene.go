package maintenance

import (
	"context"
	"time"

	"github.com/looplj/memvault/internal/log"
	"github.com/looplj/memvault/internal/store"
)

// runHygiene keeps the action queue honest across all tenants: claims
// whose holder crashed are reverted after the visibility timeout, and
// pending actions past the max age are retired to terminal failed so a
// tenant that never returns cannot accumulate work forever.
func (w *Worker) runHygiene(ctx context.Context, _ int) error {
	client := store.FromContext(ctx)

	requeued, err := client.Actions.RequeueStale(ctx, time.Now().Add(-w.Config.VisibilityTimeout))
	if err != nil {
		return err
	}

	if requeued > 0 {
		log.Warn(ctx, "stale claims requeued", log.Int("actions", requeued))
	}

	expired, err := client.Actions.ExpireOlderThan(ctx, time.Now().Add(-w.Config.MaxActionAge))
	if err != nil {
		return err
	}

	if expired > 0 {
		log.Warn(ctx, "unclaimed actions expired to terminal failed",
			log.Int("actions", expired),
			log.String("max_age", w.Config.MaxActionAge.String()),
		)
	}

	return nil
}
