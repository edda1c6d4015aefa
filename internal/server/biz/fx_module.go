package biz

import (
	"go.uber.org/fx"

	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/pkg/xcache"
)

var Module = fx.Module("biz",
	fx.Provide(func(cfg xcache.Config) xcache.Cache[*objects.Tenant] {
		return xcache.NewFromConfig[*objects.Tenant](cfg)
	}),
	fx.Provide(NewTenantService),
	fx.Provide(NewAuthService),
	fx.Provide(NewTopicService),
	fx.Provide(NewAnchorService),
	fx.Provide(NewQueueService),
	fx.Provide(NewDrainService),
	fx.Provide(NewRotationService),
	fx.Provide(NewArchiveService),
)
