package biz

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/fx"

	"github.com/looplj/memvault/internal/keyring"
	"github.com/looplj/memvault/internal/log"
	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/store"
)

type AnchorServiceParams struct {
	fx.In

	Store        *store.Client
	TopicService *TopicService
}

func NewAnchorService(params AnchorServiceParams) *AnchorService {
	return &AnchorService{
		AbstractService: &AbstractService{db: params.Store},
		TopicService:    params.TopicService,
	}
}

// AnchorService maintains the per-(topic,user) anchor cards: short
// sealed digests regenerated opportunistically when their topic drifts.
type AnchorService struct {
	*AbstractService

	TopicService *TopicService
}

// ListDecrypted returns a user's anchor cards opened under the carrier.
func (s *AnchorService) ListDecrypted(ctx context.Context, carrier *keyring.Carrier, tenantID int, userID string) ([]*objects.Anchor, error) {
	rows, err := s.storeFromContext(ctx).Anchors.ListByUser(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	anchors := make([]*objects.Anchor, 0, len(rows))

	for _, row := range rows {
		var card objects.AnchorCard

		if err := openPayload(ctx, carrier, row.Payload, &card); err != nil {
			return nil, fmt.Errorf("anchor %d: %w", row.ID, err)
		}

		anchors = append(anchors, toAnchor(row, card))
	}

	return anchors, nil
}

// Regenerate recomposes the anchor card for a topic's owner from the
// decrypted topic content and reseals it, clearing the stale flag. Runs
// only inside a drain; there is no keyless path to it.
func (s *AnchorService) Regenerate(ctx context.Context, carrier *keyring.Carrier, tenantID, topicID int) error {
	topic, err := s.TopicService.ReadDecrypted(ctx, carrier, tenantID, topicID)
	if err != nil {
		return err
	}

	card := ComposeCard(topic.Content)

	blob, err := sealPayload(ctx, carrier, card)
	if err != nil {
		return err
	}

	if _, err := s.storeFromContext(ctx).Anchors.Upsert(ctx, tenantID, topicID, topic.UserID, blob); err != nil {
		return fmt.Errorf("failed to upsert anchor: %w", err)
	}

	log.Debug(ctx, "anchor regenerated",
		log.Int("tenant_id", tenantID),
		log.Int("topic_id", topicID),
		log.String("user_id", topic.UserID),
	)

	return nil
}

// ComposeCard builds the human-readable anchor digest from topic content.
func ComposeCard(content objects.TopicContent) objects.AnchorCard {
	var b strings.Builder

	b.WriteString(content.Title)

	if content.Summary != "" {
		b.WriteString(": ")
		b.WriteString(firstSentence(content.Summary))
	}

	return objects.AnchorCard{
		Card:     b.String(),
		Entities: content.Entities,
	}
}

func firstSentence(text string) string {
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		return strings.TrimSpace(text[:i+1])
	}

	return strings.TrimSpace(text)
}

func toAnchor(row *store.Anchor, card objects.AnchorCard) *objects.Anchor {
	return &objects.Anchor{
		ID:        row.ID,
		TenantID:  row.TenantID,
		UserID:    row.UserID,
		TopicID:   row.TopicID,
		Card:      card,
		Stale:     row.Stale,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
