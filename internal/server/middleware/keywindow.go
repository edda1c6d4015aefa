package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/looplj/memvault/internal/contexts"
	"github.com/looplj/memvault/internal/keyring"
	"github.com/looplj/memvault/internal/log"
	"github.com/looplj/memvault/internal/server/biz"
)

// KeyWindowConfig names the transport headers carrying tenant content
// keys.
type KeyWindowConfig struct {
	KeyHeader         string `conf:"key_header"          yaml:"key_header"          json:"key_header"`
	RotationKeyHeader string `conf:"rotation_key_header" yaml:"rotation_key_header" json:"rotation_key_header"`
}

func (c KeyWindowConfig) keyHeader() string {
	if c.KeyHeader != "" {
		return c.KeyHeader
	}

	return "X-Memvault-Content-Key"
}

func (c KeyWindowConfig) rotationKeyHeader() string {
	if c.RotationKeyHeader != "" {
		return c.RotationKeyHeader
	}

	return "X-Memvault-Rotation-Key"
}

// WithKeyWindow opens the per-request key window. The key headers are
// stripped from the request before any handler, logger, or recovery
// path can see them; the decoded carriers live in the request context
// and are destroyed when the request ends.
//
// When the request succeeds with a key present, the tenant's pending
// actions are drained opportunistically before the window closes.
func WithKeyWindow(config KeyWindowConfig, drain *biz.DrainService) gin.HandlerFunc {
	return func(c *gin.Context) {
		carrier, ok := takeCarrier(c, config.keyHeader())
		if !ok {
			return
		}

		rotation, ok := takeCarrier(c, config.rotationKeyHeader())
		if !ok {
			if carrier != nil {
				carrier.Destroy()
			}

			return
		}

		ctx := c.Request.Context()

		if carrier != nil {
			defer carrier.Destroy()

			ctx = contexts.WithKeyCarrier(ctx, carrier)
		}

		if rotation != nil {
			defer rotation.Destroy()

			ctx = contexts.WithRotationCarrier(ctx, rotation)
		}

		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if carrier == nil || carrier.Destroyed() {
			return
		}

		drainAfterRequest(c, drain, carrier)
	}
}

// takeCarrier reads and immediately deletes the named header, so the
// raw key never survives into access logs, error dumps, or proxies
// behind us. A missing header yields a nil carrier; a malformed one
// aborts the request.
func takeCarrier(c *gin.Context, header string) (*keyring.Carrier, bool) {
	value := c.GetHeader(header)
	c.Request.Header.Del(header)

	if value == "" {
		return nil, true
	}

	carrier, err := keyring.FromHeader(value)
	if err != nil {
		AbortWithError(c, http.StatusBadRequest, errors.New("malformed content key header"))
		return nil, false
	}

	return carrier, true
}

// drainAfterRequest runs pending actions only on the success path: a
// 2xx response, no handler errors, and a context that is still alive.
// Failures here never surface to the client; the response has already
// been written.
func drainAfterRequest(c *gin.Context, drain *biz.DrainService, carrier *keyring.Carrier) {
	ctx := c.Request.Context()

	status := c.Writer.Status()
	if status < 200 || status >= 300 || len(c.Errors) > 0 || ctx.Err() != nil {
		return
	}

	tenantID, ok := contexts.GetTenantID(ctx)
	if !ok {
		return
	}

	result, err := drain.Drain(ctx, carrier, tenantID)
	if err != nil {
		log.Warn(ctx, "post-request drain failed", log.Int("tenant_id", tenantID), log.Cause(err))
		return
	}

	if result.Drained > 0 || result.Failed > 0 {
		log.Debug(ctx, "post-request drain",
			log.Int("tenant_id", tenantID),
			log.Int("drained", result.Drained),
			log.Int("failed", result.Failed),
			log.Int("left", result.Left),
		)
	}
}
