package server

import (
	"github.com/gin-contrib/cors"
	"go.uber.org/fx"

	"github.com/looplj/memvault/internal/server/api"
	"github.com/looplj/memvault/internal/server/biz"
	"github.com/looplj/memvault/internal/server/middleware"
	"github.com/looplj/memvault/internal/store"
)

type Handlers struct {
	fx.In

	System   *api.SystemHandlers
	Auth     *api.AuthHandlers
	Tenant   *api.TenantHandlers
	Topic    *api.TopicHandlers
	Anchor   *api.AnchorHandlers
	Action   *api.ActionHandlers
	Archive  *api.ArchiveHandlers
	Rotation *api.RotationHandlers
}

type Services struct {
	fx.In

	AuthService   *biz.AuthService
	TenantService *biz.TenantService
	DrainService  *biz.DrainService
}

func SetupRoutes(server *Server, handlers Handlers, client *store.Client, services Services) {
	server.Use(middleware.AccessLog())
	server.Use(middleware.WithStoreClient(client))
	server.Use(middleware.WithLoggingTracing(server.Config.Trace))
	server.Use(middleware.WithMetrics())

	// Setup CORS middleware at server level if enabled
	if server.Config.CORS.Enabled {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = server.Config.CORS.AllowedOrigins
		corsConfig.AllowMethods = server.Config.CORS.AllowedMethods
		corsConfig.AllowHeaders = server.Config.CORS.AllowedHeaders
		corsConfig.ExposeHeaders = server.Config.CORS.ExposedHeaders
		corsConfig.AllowCredentials = server.Config.CORS.AllowCredentials
		corsConfig.MaxAge = server.Config.CORS.MaxAge

		corsHandler := cors.New(corsConfig)
		server.Use(corsHandler)
		server.OPTIONS("*any", corsHandler)
	}

	publicGroup := server.Group(server.Config.BasePath, middleware.WithTimeout(server.Config.RequestTimeout))
	{
		// Health check and version - no authentication required
		publicGroup.GET("/healthz", handlers.System.Healthz)
		publicGroup.GET("/version", handlers.System.Version)
	}

	unSecureAdminGroup := server.Group(server.Config.BasePath+"/admin/v1", middleware.WithTimeout(server.Config.RequestTimeout))
	{
		// Admin Login - DO NOT AUTH
		unSecureAdminGroup.POST("/auth/signin", handlers.Auth.SignIn)
	}

	adminGroup := server.Group(server.Config.BasePath+"/admin/v1",
		middleware.WithTimeout(server.Config.RequestTimeout),
		middleware.WithAdminAuth(services.AuthService),
	)
	{
		adminGroup.POST("/tenants", handlers.Tenant.Provision)
		adminGroup.GET("/tenants", handlers.Tenant.List)
		adminGroup.GET("/tenants/:id", handlers.Tenant.Get)
		adminGroup.POST("/tenants/:id/suspend", handlers.Tenant.Suspend)
		adminGroup.POST("/tenants/:id/activate", handlers.Tenant.Activate)

		// Structural queue triage. No key ever crosses this plane.
		adminGroup.GET("/actions", handlers.Action.List)
		adminGroup.POST("/actions/:id/requeue", handlers.Action.Requeue)

		adminGroup.POST("/archives", handlers.Archive.Create)

		adminGroup.POST("/auth/token", handlers.Auth.MintToken)
	}

	dataGroup := server.Group(server.Config.BasePath+"/v1",
		middleware.WithTimeout(server.Config.RequestTimeout),
		middleware.WithAgentAuth(services.AuthService, services.TenantService),
		middleware.WithKeyWindow(server.Config.KeyWindow, services.DrainService),
	)
	{
		dataGroup.POST("/topics", handlers.Topic.Create)
		dataGroup.GET("/topics", handlers.Topic.List)
		dataGroup.POST("/topics/search", handlers.Topic.Search)
		dataGroup.GET("/topics/:id", handlers.Topic.Get)
		dataGroup.PUT("/topics/:id", handlers.Topic.Update)
		dataGroup.DELETE("/topics/:id", handlers.Topic.Delete)
		dataGroup.POST("/topics/:id/edges", handlers.Topic.AddEdge)
		dataGroup.GET("/topics/:id/neighbors", handlers.Topic.Neighbors)

		dataGroup.GET("/anchors", handlers.Anchor.List)

		dataGroup.POST("/tenants/rotate", handlers.Rotation.Rotate)
	}
}
