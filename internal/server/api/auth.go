package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/looplj/memvault/internal/server/biz"
)

type AuthHandlersParams struct {
	fx.In

	AuthService *biz.AuthService
}

func NewAuthHandlers(params AuthHandlersParams) *AuthHandlers {
	return &AuthHandlers{
		AuthService: params.AuthService,
	}
}

type AuthHandlers struct {
	AuthService *biz.AuthService
}

type SignInRequest struct {
	Password string `json:"password" binding:"required"`
}

type SignInResponse struct {
	Token string `json:"token"`
}

// SignIn exchanges the admin password for an admin JWT.
func (h *AuthHandlers) SignIn(c *gin.Context) {
	var (
		ctx = c.Request.Context()
		req SignInRequest
	)

	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, errors.New("invalid request format"))
		return
	}

	token, err := h.AuthService.AuthenticateAdmin(ctx, req.Password)
	if err != nil {
		if errors.Is(err, biz.ErrInvalidPassword) {
			JSONError(c, http.StatusUnauthorized, errors.New("invalid password"))
			return
		}

		JSONError(c, http.StatusInternalServerError, errors.New("internal server error"))

		return
	}

	c.JSON(http.StatusOK, SignInResponse{Token: token})
}

type MintTokenRequest struct {
	TenantID int    `json:"tenant_id" binding:"required"`
	UserID   string `json:"user_id"   binding:"required"`
}

type MintTokenResponse struct {
	Token string `json:"token"`
}

// MintToken issues an agent bearer token bound to a tenant and user.
// Admin-plane bootstrap for agent deployments.
func (h *AuthHandlers) MintToken(c *gin.Context) {
	var (
		ctx = c.Request.Context()
		req MintTokenRequest
	)

	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, errors.New("invalid request format"))
		return
	}

	token, err := h.AuthService.MintAgentToken(ctx, req.TenantID, req.UserID)
	if err != nil {
		JSONDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, MintTokenResponse{Token: token})
}
