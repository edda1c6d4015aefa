package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/looplj/memvault/internal/contexts"
	"github.com/looplj/memvault/internal/server/biz"
)

type RotationHandlersParams struct {
	fx.In

	RotationService *biz.RotationService
}

func NewRotationHandlers(params RotationHandlersParams) *RotationHandlers {
	return &RotationHandlers{
		RotationService: params.RotationService,
	}
}

type RotationHandlers struct {
	RotationService *biz.RotationService
}

// Rotate re-encrypts every live payload of the tenant from the key in
// the content-key header to the key in the rotation header. Per-entity
// atomic; a partial run leaves mixed formats, each readable under
// exactly one of the two keys.
func (h *RotationHandlers) Rotate(c *gin.Context) {
	tenantID, _, err := requestIdentity(c)
	if err != nil {
		JSONError(c, http.StatusUnauthorized, err)
		return
	}

	oldCarrier := keyCarrier(c)
	newCarrier, _ := contexts.GetRotationCarrier(c.Request.Context())

	result, err := h.RotationService.Rotate(c.Request.Context(), oldCarrier, newCarrier, tenantID)
	if err != nil {
		JSONDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
