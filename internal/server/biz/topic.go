package biz

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/looplj/memvault/internal/keyring"
	"github.com/looplj/memvault/internal/log"
	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/store"
	"github.com/looplj/memvault/internal/vector"
)

type TopicServiceParams struct {
	fx.In

	Store *store.Client
}

func NewTopicService(params TopicServiceParams) *TopicService {
	return &TopicService{
		AbstractService: &AbstractService{db: params.Store},
	}
}

// TopicService is the encrypted entity boundary for topics. Content
// crosses it in exactly two directions: sealed on the way down, opened
// inside a carrier's key window on the way up. Structural fields
// (importance, timestamps, embedding, edges) never need a key.
type TopicService struct {
	*AbstractService
}

// CreateTopicInput is the decrypted creation shape. RawExtraction, when
// set, is a model response whose entities are parsed (with repair) into
// the content before sealing.
type CreateTopicInput struct {
	UserID        string
	Content       objects.TopicContent
	Embedding     []float32
	Importance    float64
	RawExtraction string
}

// Create seals the content and persists the row. The returned topic is
// the transient decrypted representation.
func (s *TopicService) Create(ctx context.Context, carrier *keyring.Carrier, tenantID int, input CreateTopicInput) (*objects.Topic, error) {
	content := input.Content

	if input.RawExtraction != "" {
		content.Entities = mergeEntities(content.Entities, ExtractEntities(input.RawExtraction))
	}

	if len(content.Entities) == 0 && content.Source != "" {
		content.Entities = HeuristicEntities(content.Source)
	}

	blob, err := sealPayload(ctx, carrier, content)
	if err != nil {
		return nil, err
	}

	embedding, err := vector.Encode(input.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding: %w", err)
	}

	importance := input.Importance
	if importance == 0 {
		importance = 0.5
	}

	row := &store.Topic{
		TenantID:          tenantID,
		UserID:            input.UserID,
		Payload:           blob,
		Embedding:         embedding,
		Importance:        importance,
		ExtractionVersion: ExtractionVersion,
	}

	if _, err := s.storeFromContext(ctx).Topics.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to create topic: %w", err)
	}

	log.Debug(ctx, "topic created",
		log.Int("tenant_id", tenantID),
		log.Int("topic_id", row.ID),
	)

	return composeTopic(row, content, input.Embedding), nil
}

// ReadDecrypted fetches the row and opens its payload inside the
// carrier's key window. Soft-deleted topics read as not found.
func (s *TopicService) ReadDecrypted(ctx context.Context, carrier *keyring.Carrier, tenantID, id int) (*objects.Topic, error) {
	row, err := s.storeFromContext(ctx).Topics.ByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if row.DeletedAt != nil {
		return nil, store.ErrNotFound
	}

	return s.decryptRow(ctx, carrier, row)
}

func (s *TopicService) decryptRow(ctx context.Context, carrier *keyring.Carrier, row *store.Topic) (*objects.Topic, error) {
	var content objects.TopicContent

	if err := openPayload(ctx, carrier, row.Payload, &content); err != nil {
		return nil, fmt.Errorf("topic %d: %w", row.ID, err)
	}

	embedding, err := vector.Decode(row.Embedding)
	if err != nil {
		return nil, fmt.Errorf("topic %d: malformed embedding: %w", row.ID, err)
	}

	return composeTopic(row, content, embedding), nil
}

// UpdateTopicInput carries the mutable fields; nil means unchanged.
type UpdateTopicInput struct {
	Content    *objects.TopicContent
	Embedding  []float32
	Importance *float64
}

// Update is a read-modify-write through the boundary: the existing
// payload must open under the presented key before anything is written.
func (s *TopicService) Update(ctx context.Context, carrier *keyring.Carrier, tenantID, id int, input UpdateTopicInput) (*objects.Topic, error) {
	var updated *objects.Topic

	err := s.RunInTransaction(ctx, func(txCtx context.Context) error {
		topic, err := s.ReadDecrypted(txCtx, carrier, tenantID, id)
		if err != nil {
			return err
		}

		if input.Content != nil {
			topic.Content = *input.Content
		}

		if input.Embedding != nil {
			topic.Embedding = input.Embedding
		}

		if input.Importance != nil {
			topic.Importance = *input.Importance
		}

		if err := s.WriteEncrypted(txCtx, carrier, topic); err != nil {
			return err
		}

		updated = topic

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// WriteEncrypted seals the topic's content with a fresh nonce and
// persists content blob and structural fields together.
func (s *TopicService) WriteEncrypted(ctx context.Context, carrier *keyring.Carrier, topic *objects.Topic) error {
	blob, err := sealPayload(ctx, carrier, topic.Content)
	if err != nil {
		return err
	}

	embedding, err := vector.Encode(topic.Embedding)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}

	row := &store.Topic{
		ID:                topic.ID,
		TenantID:          topic.TenantID,
		UserID:            topic.UserID,
		Payload:           blob,
		Embedding:         embedding,
		Importance:        topic.Importance,
		ExtractionVersion: topic.ExtractionVersion,
		Orphaned:          topic.Orphaned,
	}

	if err := s.storeFromContext(ctx).Topics.Update(ctx, row); err != nil {
		return fmt.Errorf("failed to update topic: %w", err)
	}

	// The stored card no longer matches the content.
	if err := s.storeFromContext(ctx).Anchors.MarkStaleByTopic(ctx, topic.TenantID, topic.ID); err != nil {
		return err
	}

	return nil
}

// List returns the structural listing. Titles are decrypted only when a
// carrier is present; rows whose payload does not open are listed
// without a title rather than erroring the listing.
func (s *TopicService) List(ctx context.Context, carrier *keyring.Carrier, tenantID int, userID string) ([]objects.TopicSummary, error) {
	var (
		rows []*store.Topic
		err  error
	)

	if userID != "" {
		rows, err = s.storeFromContext(ctx).Topics.ListLiveByUser(ctx, tenantID, userID)
	} else {
		rows, err = s.storeFromContext(ctx).Topics.ListLive(ctx, tenantID)
	}

	if err != nil {
		return nil, err
	}

	summaries := make([]objects.TopicSummary, 0, len(rows))

	for _, row := range rows {
		summary := objects.TopicSummary{
			ID:         row.ID,
			UserID:     row.UserID,
			Importance: row.Importance,
			Orphaned:   row.Orphaned,
			CreatedAt:  row.CreatedAt,
			UpdatedAt:  row.UpdatedAt,
		}

		if carrier != nil {
			var content objects.TopicContent
			if err := openPayload(ctx, carrier, row.Payload, &content); err == nil {
				summary.Title = content.Title
			}
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

// Search ranks the tenant's live topics by cosine similarity to the
// query embedding. Ranking is structural; titles require a key.
func (s *TopicService) Search(ctx context.Context, carrier *keyring.Carrier, tenantID int, query []float32, limit int) ([]objects.SearchHit, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query embedding is required")
	}

	if limit <= 0 {
		limit = 10
	}

	rows, err := s.storeFromContext(ctx).Topics.ListLive(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	byID := make(map[int]*store.Topic, len(rows))
	hits := make([]vector.Hit, 0, len(rows))

	for _, row := range rows {
		embedding, err := vector.Decode(row.Embedding)
		if err != nil || len(embedding) == 0 {
			continue
		}

		score, err := vector.Cosine(query, embedding)
		if err != nil {
			continue
		}

		byID[row.ID] = row

		hits = append(hits, vector.Hit{ID: row.ID, Score: score})
	}

	results := make([]objects.SearchHit, 0, limit)

	for _, hit := range vector.TopK(hits, limit) {
		row := byID[hit.ID]

		result := objects.SearchHit{
			ID:         hit.ID,
			Score:      hit.Score,
			Importance: row.Importance,
		}

		if carrier != nil {
			var content objects.TopicContent
			if err := openPayload(ctx, carrier, row.Payload, &content); err == nil {
				result.Title = content.Title
			}
		}

		results = append(results, result)
	}

	return results, nil
}

// SoftDelete tombstones a topic. Structural: no key involved. Anchors
// pointing at it are marked stale for the next regeneration pass.
func (s *TopicService) SoftDelete(ctx context.Context, tenantID, id int) error {
	return s.RunInTransaction(ctx, func(txCtx context.Context) error {
		if err := s.storeFromContext(txCtx).Topics.SoftDelete(txCtx, tenantID, id); err != nil {
			return err
		}

		return s.storeFromContext(txCtx).Anchors.MarkStaleByTopic(txCtx, tenantID, id)
	})
}

// AddEdge records a structural relation between two live topics.
func (s *TopicService) AddEdge(ctx context.Context, tenantID, srcID, dstID int, kind objects.EdgeKind, weight float64) (*objects.Edge, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid edge kind: %s", kind)
	}

	if srcID == dstID {
		return nil, fmt.Errorf("edge endpoints must differ")
	}

	client := s.storeFromContext(ctx)

	for _, id := range []int{srcID, dstID} {
		row, err := client.Topics.ByID(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}

		if row.DeletedAt != nil {
			return nil, fmt.Errorf("topic %d: %w", id, store.ErrNotFound)
		}
	}

	row := &store.Edge{
		TenantID: tenantID,
		SrcID:    srcID,
		DstID:    dstID,
		Kind:     string(kind),
		Weight:   weight,
	}

	if _, err := client.Edges.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to create edge: %w", err)
	}

	return toEdge(row), nil
}

// Neighbors lists the edges touching a topic.
func (s *TopicService) Neighbors(ctx context.Context, tenantID, topicID int) ([]*objects.Edge, error) {
	rows, err := s.storeFromContext(ctx).Edges.Neighbors(ctx, tenantID, topicID)
	if err != nil {
		return nil, err
	}

	edges := make([]*objects.Edge, 0, len(rows))
	for _, row := range rows {
		edges = append(edges, toEdge(row))
	}

	return edges, nil
}

func composeTopic(row *store.Topic, content objects.TopicContent, embedding []float32) *objects.Topic {
	return &objects.Topic{
		ID:                row.ID,
		TenantID:          row.TenantID,
		UserID:            row.UserID,
		Content:           content,
		Embedding:         embedding,
		Importance:        row.Importance,
		ExtractionVersion: row.ExtractionVersion,
		Orphaned:          row.Orphaned,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
		DeletedAt:         row.DeletedAt,
	}
}

func toEdge(row *store.Edge) *objects.Edge {
	return &objects.Edge{
		ID:        row.ID,
		TenantID:  row.TenantID,
		SrcID:     row.SrcID,
		DstID:     row.DstID,
		Kind:      objects.EdgeKind(row.Kind),
		Weight:    row.Weight,
		CreatedAt: row.CreatedAt,
	}
}

func mergeEntities(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	merged := make([]string, 0, len(a)+len(b))

	for _, entity := range append(append([]string{}, a...), b...) {
		if entity == "" {
			continue
		}

		if _, ok := seen[entity]; ok {
			continue
		}

		seen[entity] = struct{}{}

		merged = append(merged, entity)
	}

	return merged
}
