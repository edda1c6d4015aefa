package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/looplj/memvault/internal/server/biz"
)

type ArchiveHandlersParams struct {
	fx.In

	ArchiveService *biz.ArchiveService
}

func NewArchiveHandlers(params ArchiveHandlersParams) *ArchiveHandlers {
	return &ArchiveHandlers{
		ArchiveService: params.ArchiveService,
	}
}

type ArchiveHandlers struct {
	ArchiveService *biz.ArchiveService
}

type CreateArchiveRequest struct {
	TenantID int `json:"tenant_id" binding:"required"`
}

// Create exports a tenant's sealed rows to the configured archive
// target. No key is involved; the archive holds ciphertext only.
func (h *ArchiveHandlers) Create(c *gin.Context) {
	var req CreateArchiveRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, errors.New("invalid request format"))
		return
	}

	result, err := h.ArchiveService.Export(c.Request.Context(), req.TenantID)
	if err != nil {
		JSONDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}
