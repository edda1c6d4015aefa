package maintenance

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/viterin/partial"

	"github.com/looplj/memvault/internal/log"
	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/store"
	"github.com/looplj/memvault/internal/vector"
)

// normCache memoizes embedding norms across maintenance passes. Keys
// include the row's update time so a rewritten embedding misses.
type normCache struct {
	cache *lru.Cache[normKey, float64]
}

type normKey struct {
	TopicID   int
	UpdatedAt int64
}

func newNormCache(size int) *normCache {
	cache, _ := lru.New[normKey, float64](size)

	return &normCache{cache: cache}
}

func (c *normCache) norm(topic *store.Topic, embedding []float32) float64 {
	key := normKey{TopicID: topic.ID, UpdatedAt: topic.UpdatedAt.Unix()}

	if norm, ok := c.cache.Get(key); ok {
		return norm
	}

	norm := vector.Norm(embedding)
	c.cache.Add(key, norm)

	return norm
}

// candidatePair is a near-duplicate topic pair; Survivor is the older
// (lower id) topic.
type candidatePair struct {
	Survivor int
	Merged   int
	Score    float64
}

// runClustering finds near-duplicate topic pairs per (tenant, user) by
// pairwise cosine over the structural embeddings and enqueues
// merge-execution for the best ones. The merge itself needs content and
// therefore runs in a key window, not here.
func (w *Worker) runClustering(ctx context.Context, tenantID int) error {
	client := store.FromContext(ctx)

	topics, err := client.Topics.ListLive(ctx, tenantID)
	if err != nil {
		return err
	}

	byUser := make(map[string][]*store.Topic)
	for _, topic := range topics {
		byUser[topic.UserID] = append(byUser[topic.UserID], topic)
	}

	var pairs []candidatePair

	for _, group := range byUser {
		pairs = append(pairs, w.findPairs(group)...)
	}

	if len(pairs) == 0 {
		return nil
	}

	k := w.Config.ClusterMaxPairs
	if k > len(pairs) {
		k = len(pairs)
	}

	partial.SortFunc(pairs, k, func(a, b candidatePair) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	enqueued := 0

	for _, pair := range pairs[:k] {
		_, created, err := w.QueueService.Enqueue(
			ctx, tenantID, objects.ActionMergeExecution, []int{pair.Survivor, pair.Merged},
		)
		if err != nil {
			return err
		}

		if created {
			enqueued++
		}
	}

	if enqueued > 0 {
		log.Info(ctx, "merge candidates enqueued",
			log.Int("tenant_id", tenantID),
			log.Int("pairs", enqueued),
		)
	}

	return nil
}

func (w *Worker) findPairs(topics []*store.Topic) []candidatePair {
	type entry struct {
		topic     *store.Topic
		embedding []float32
		norm      float64
	}

	entries := make([]entry, 0, len(topics))

	for _, topic := range topics {
		embedding, err := vector.Decode(topic.Embedding)
		if err != nil || len(embedding) == 0 {
			continue
		}

		entries = append(entries, entry{
			topic:     topic,
			embedding: embedding,
			norm:      w.norms.norm(topic, embedding),
		})
	}

	var pairs []candidatePair

	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			score, err := vector.CosineWithNorms(
				entries[i].embedding, entries[j].embedding,
				entries[i].norm, entries[j].norm,
			)
			if err != nil || score < w.Config.ClusterThreshold {
				continue
			}

			survivor, merged := entries[i].topic.ID, entries[j].topic.ID
			if survivor > merged {
				survivor, merged = merged, survivor
			}

			pairs = append(pairs, candidatePair{Survivor: survivor, Merged: merged, Score: score})
		}
	}

	return pairs
}
