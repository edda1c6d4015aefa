package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/looplj/memvault/internal/contexts"
	"github.com/looplj/memvault/internal/server/biz"
)

// ExtractBearerToken pulls the token out of the Authorization header.
func ExtractBearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", errors.New("Authorization header is required")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("Authorization header must start with 'Bearer '")
	}

	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return "", errors.New("token is required")
	}

	return token, nil
}

// WithAdminAuth guards the control-plane routes with the admin JWT.
func WithAdminAuth(auth *biz.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := ExtractBearerToken(c)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, err)
			return
		}

		if err := auth.VerifyAdminToken(c.Request.Context(), token); err != nil {
			if errors.Is(err, biz.ErrInvalidToken) {
				AbortWithError(c, http.StatusUnauthorized, biz.ErrInvalidToken)
			} else {
				AbortWithError(c, http.StatusInternalServerError, errors.New("failed to validate token"))
			}

			return
		}

		c.Next()
	}
}

// WithAgentAuth authenticates an agent token, rejects suspended
// tenants, and binds the tenant and user identity to the request
// context.
func WithAgentAuth(auth *biz.AuthService, tenants *biz.TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := ExtractBearerToken(c)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, err)
			return
		}

		tenantID, userID, err := auth.AuthenticateAgentToken(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, biz.ErrInvalidToken) {
				AbortWithError(c, http.StatusUnauthorized, biz.ErrInvalidToken)
			} else {
				AbortWithError(c, http.StatusInternalServerError, errors.New("failed to validate token"))
			}

			return
		}

		if _, err := tenants.RequireActive(c.Request.Context(), tenantID); err != nil {
			if errors.Is(err, biz.ErrTenantSuspended) {
				AbortWithError(c, http.StatusForbidden, biz.ErrTenantSuspended)
			} else {
				AbortWithError(c, http.StatusUnauthorized, biz.ErrInvalidToken)
			}

			return
		}

		ctx := contexts.WithTenantID(c.Request.Context(), tenantID)
		ctx = contexts.WithUserID(ctx, userID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
