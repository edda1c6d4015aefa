package maintenance

import (
	"context"
	"time"

	"github.com/looplj/memvault/internal/log"
	"github.com/looplj/memvault/internal/store"
)

// runOrphanDetection flags topics older than the orphan age with no live
// edges in either direction. The flag is structural; flagged topics stay
// fully readable.
func (w *Worker) runOrphanDetection(ctx context.Context, tenantID int) error {
	client := store.FromContext(ctx)

	topics, err := client.Topics.ListLive(ctx, tenantID)
	if err != nil {
		return err
	}

	edges, err := client.Edges.ListByTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	connected := make(map[int]struct{}, len(edges)*2)
	for _, edge := range edges {
		connected[edge.SrcID] = struct{}{}
		connected[edge.DstID] = struct{}{}
	}

	cutoff := time.Now().Add(-w.Config.OrphanAge)
	flagged := 0

	for _, topic := range topics {
		_, hasEdges := connected[topic.ID]
		orphaned := !hasEdges && topic.CreatedAt.Before(cutoff)

		if orphaned == topic.Orphaned {
			continue
		}

		if err := client.Topics.SetOrphaned(ctx, tenantID, topic.ID, orphaned); err != nil {
			return err
		}

		if orphaned {
			flagged++
		}
	}

	if flagged > 0 {
		log.Debug(ctx, "orphans flagged", log.Int("tenant_id", tenantID), log.Int("topics", flagged))
	}

	return nil
}
