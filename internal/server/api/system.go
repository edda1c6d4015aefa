package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/looplj/memvault/internal/build"
	"github.com/looplj/memvault/internal/store"
)

type SystemHandlersParams struct {
	fx.In

	Store *store.Client
}

func NewSystemHandlers(params SystemHandlersParams) *SystemHandlers {
	return &SystemHandlers{Store: params.Store}
}

type SystemHandlers struct {
	Store *store.Client
}

// Healthz reports liveness. The store ping covers the only hard
// dependency; everything else degrades.
func (h *SystemHandlers) Healthz(c *gin.Context) {
	if err := h.Store.DB().PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandlers) Version(c *gin.Context) {
	c.JSON(http.StatusOK, build.GetBuildInfo())
}
