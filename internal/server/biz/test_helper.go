package biz

import (
	"time"

	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/pkg/xcache"
	"github.com/looplj/memvault/internal/store"
)

// Services bundles the full service graph over one store for tests.
type Services struct {
	Tenant   *TenantService
	Auth     *AuthService
	Topic    *TopicService
	Anchor   *AnchorService
	Queue    *QueueService
	Drain    *DrainService
	Rotation *RotationService
}

func NewServicesForTest(client *store.Client) *Services {
	tenantSvc := NewTenantService(TenantServiceParams{
		Store: client,
		Cache: xcache.NewFromConfig[*objects.Tenant](xcache.Config{Mode: xcache.ModeMemory}),
	})

	queueSvc := NewQueueService(QueueServiceParams{
		Store:  client,
		Config: QueueConfig{MaxAttempts: 3},
	})

	topicSvc := NewTopicService(TopicServiceParams{
		Store: client,
	})

	anchorSvc := NewAnchorService(AnchorServiceParams{
		Store:        client,
		TopicService: topicSvc,
	})

	drainSvc := NewDrainService(DrainServiceParams{
		Store:         client,
		Config:        DrainConfig{MaxActions: 10, Budget: 5 * time.Second},
		QueueService:  queueSvc,
		TopicService:  topicSvc,
		AnchorService: anchorSvc,
	})

	rotationSvc := NewRotationService(RotationServiceParams{Store: client})

	authSvc := NewAuthService(AuthServiceParams{
		Config:        AuthConfig{SecretKey: "test-secret"},
		TenantService: tenantSvc,
	})

	return &Services{
		Tenant:   tenantSvc,
		Auth:     authSvc,
		Topic:    topicSvc,
		Anchor:   anchorSvc,
		Queue:    queueSvc,
		Drain:    drainSvc,
		Rotation: rotationSvc,
	}
}
