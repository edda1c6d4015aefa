package maintenance

import (
	"context"

	"github.com/looplj/memvault/internal/log"
	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/store"
)

// runInference adds transitive edges: a strong A→B and B→C without an
// existing A→C yields an inferred A→C whose weight is the damped product
// of the two. Purely structural graph work.
func (w *Worker) runInference(ctx context.Context, tenantID int) error {
	client := store.FromContext(ctx)

	edges, err := client.Edges.ListByTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	bySrc := make(map[int][]*store.Edge)
	existing := make(map[[2]int]struct{}, len(edges))

	for _, edge := range edges {
		bySrc[edge.SrcID] = append(bySrc[edge.SrcID], edge)
		existing[[2]int{edge.SrcID, edge.DstID}] = struct{}{}
	}

	inferred := 0

	for _, first := range edges {
		if first.Weight < w.Config.InferenceThreshold {
			continue
		}

		for _, second := range bySrc[first.DstID] {
			if second.Weight < w.Config.InferenceThreshold || second.DstID == first.SrcID {
				continue
			}

			key := [2]int{first.SrcID, second.DstID}
			if _, ok := existing[key]; ok {
				continue
			}

			weight := first.Weight * second.Weight * w.Config.InferenceDamping

			_, err := client.Edges.Create(ctx, &store.Edge{
				TenantID: tenantID,
				SrcID:    first.SrcID,
				DstID:    second.DstID,
				Kind:     string(objects.EdgeKindInferred),
				Weight:   weight,
			})
			if err != nil {
				return err
			}

			existing[key] = struct{}{}
			inferred++
		}
	}

	if inferred > 0 {
		log.Debug(ctx, "edges inferred", log.Int("tenant_id", tenantID), log.Int("edges", inferred))
	}

	return nil
}
