package api

import (
	"go.uber.org/fx"
)

var Module = fx.Module("api",
	fx.Provide(
		NewSystemHandlers,
		NewAuthHandlers,
		NewTenantHandlers,
		NewTopicHandlers,
		NewAnchorHandlers,
		NewActionHandlers,
		NewArchiveHandlers,
		NewRotationHandlers,
	),
)
