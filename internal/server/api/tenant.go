package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/looplj/memvault/internal/server/biz"
)

type TenantHandlersParams struct {
	fx.In

	TenantService *biz.TenantService
}

func NewTenantHandlers(params TenantHandlersParams) *TenantHandlers {
	return &TenantHandlers{
		TenantService: params.TenantService,
	}
}

type TenantHandlers struct {
	TenantService *biz.TenantService
}

type ProvisionTenantRequest struct {
	Name string `json:"name" binding:"required"`
}

// Provision creates a tenant with fresh key-derivation parameters. The
// returned salt and iteration count are the edge's derivation contract;
// the server never sees the derived key outside a request window.
func (h *TenantHandlers) Provision(c *gin.Context) {
	var req ProvisionTenantRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, errors.New("invalid request format"))
		return
	}

	tenant, err := h.TenantService.Provision(c.Request.Context(), req.Name)
	if err != nil {
		JSONDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tenant)
}

func (h *TenantHandlers) List(c *gin.Context) {
	tenants, err := h.TenantService.List(c.Request.Context())
	if err != nil {
		JSONDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tenants": tenants})
}

func (h *TenantHandlers) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		JSONError(c, http.StatusBadRequest, err)
		return
	}

	tenant, err := h.TenantService.Get(c.Request.Context(), id)
	if err != nil {
		JSONDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, tenant)
}

func (h *TenantHandlers) Suspend(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		JSONError(c, http.StatusBadRequest, err)
		return
	}

	if err := h.TenantService.Suspend(c.Request.Context(), id); err != nil {
		JSONDomainError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *TenantHandlers) Activate(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		JSONError(c, http.StatusBadRequest, err)
		return
	}

	if err := h.TenantService.Activate(c.Request.Context(), id); err != nil {
		JSONDomainError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func pathID(c *gin.Context, name string) (int, error) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}

	return id, nil
}
