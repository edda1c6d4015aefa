package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/looplj/memvault/internal/log"
	"github.com/looplj/memvault/internal/objects"
)

// Recovery converts handler panics into 500 responses. Hand-rolled
// instead of gin's recovery: gin dumps the raw request to stderr in
// debug mode, and a panic ahead of the key window would put the key
// headers in that dump.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				log.Error(c.Request.Context(), "panic recovered",
					log.String("method", c.Request.Method),
					log.String("path", c.Request.URL.Path),
					log.Any("panic", recovered),
					log.String("stack", string(debug.Stack())),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, objects.ErrorResponse{
					Error: objects.Error{
						Type:    http.StatusText(http.StatusInternalServerError),
						Message: "internal server error",
					},
				})
			}
		}()

		c.Next()
	}
}
