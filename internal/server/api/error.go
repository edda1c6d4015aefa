package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/looplj/memvault/internal/crypto"
	"github.com/looplj/memvault/internal/keyring"
	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/server/biz"
	"github.com/looplj/memvault/internal/store"
)

// JSONError returns a JSON error response and adds the error to gin context for access logging.
func JSONError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.JSON(status, objects.ErrorResponse{
		Error: objects.Error{
			Type:    http.StatusText(status),
			Message: err.Error(),
		},
	})
}

// JSONDomainError maps domain errors onto HTTP statuses. A missing key
// is 428 (the caller can retry with the header set), a wrong key is
// indistinguishable from forbidden access.
func JSONDomainError(c *gin.Context, err error) {
	JSONError(c, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, biz.ErrKeyMissing):
		return http.StatusPreconditionRequired
	case errors.Is(err, biz.ErrAccessDenied), errors.Is(err, crypto.ErrDecryptionFailed):
		return http.StatusForbidden
	case errors.Is(err, biz.ErrTenantSuspended):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, biz.ErrInvalidToken), errors.Is(err, biz.ErrInvalidPassword):
		return http.StatusUnauthorized
	case errors.Is(err, keyring.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrClaimConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
