package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/looplj/memvault/internal/server/biz"
)

type AnchorHandlersParams struct {
	fx.In

	AnchorService *biz.AnchorService
}

func NewAnchorHandlers(params AnchorHandlersParams) *AnchorHandlers {
	return &AnchorHandlers{
		AnchorService: params.AnchorService,
	}
}

type AnchorHandlers struct {
	AnchorService *biz.AnchorService
}

// List returns the user's decrypted anchor cards. Requires a key.
func (h *AnchorHandlers) List(c *gin.Context) {
	tenantID, userID, err := requestIdentity(c)
	if err != nil {
		JSONError(c, http.StatusUnauthorized, err)
		return
	}

	if q := c.Query("user_id"); q != "" {
		userID = q
	}

	anchors, err := h.AnchorService.ListDecrypted(c.Request.Context(), keyCarrier(c), tenantID, userID)
	if err != nil {
		JSONDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"anchors": anchors})
}
