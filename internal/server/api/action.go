package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/server/biz"
)

type ActionHandlersParams struct {
	fx.In

	QueueService *biz.QueueService
}

func NewActionHandlers(params ActionHandlersParams) *ActionHandlers {
	return &ActionHandlers{
		QueueService: params.QueueService,
	}
}

type ActionHandlers struct {
	QueueService *biz.QueueService
}

// List exposes the queue structurally for operator triage. Target ids,
// statuses, and attempt counts only; never content.
func (h *ActionHandlers) List(c *gin.Context) {
	var tenantID int

	if q := c.Query("tenant_id"); q != "" {
		id, err := strconv.Atoi(q)
		if err != nil || id <= 0 {
			JSONError(c, http.StatusBadRequest, errors.New("invalid tenant_id"))
			return
		}

		tenantID = id
	}

	status := objects.ActionStatus(c.Query("status"))

	actions, err := h.QueueService.List(c.Request.Context(), tenantID, status)
	if err != nil {
		JSONDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

// Requeue resets a terminally failed action to pending with a fresh
// attempt budget. Manual intervention after triage.
func (h *ActionHandlers) Requeue(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		JSONError(c, http.StatusBadRequest, err)
		return
	}

	if err := h.QueueService.Requeue(c.Request.Context(), id); err != nil {
		JSONDomainError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
