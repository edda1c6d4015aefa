package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/looplj/memvault/internal/store"
)

// WithStoreClient makes the store client reachable from the request
// context, so services resolve the same client (or transaction) the
// request runs under.
func WithStoreClient(client *store.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := store.NewContext(c.Request.Context(), client)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
