package middleware

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/looplj/memvault/internal/log"
)

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("panic recovery", func(t *testing.T) {
		router := gin.New()
		router.Use(Recovery())

		router.GET("/panic", func(c *gin.Context) {
			panic("test panic")
		})

		req := httptest.NewRequest(http.MethodGet, "/panic", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != 500 {
			t.Errorf("expected status 500, got %d", w.Code)
		}
	})

	t.Run("normal request without panic", func(t *testing.T) {
		router := gin.New()
		router.Use(Recovery())

		router.GET("/ok", func(c *gin.Context) {
			c.String(200, "OK")
		})

		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != 200 {
			t.Errorf("expected status 200, got %d", w.Code)
		}

		if !strings.Contains(w.Body.String(), "OK") {
			t.Errorf("expected body to contain 'OK', got %s", w.Body.String())
		}
	})
}

// A panic can fire before the key window strips the key headers, and
// gin's debug mode must not get a chance to dump them anywhere.
func TestRecoveryNeverDumpsKeyHeader(t *testing.T) {
	gin.SetMode(gin.DebugMode)
	t.Cleanup(func() { gin.SetMode(gin.TestMode) })

	var errSink, outSink bytes.Buffer

	prevErrWriter := gin.DefaultErrorWriter
	prevWriter := gin.DefaultWriter
	gin.DefaultErrorWriter = &errSink
	gin.DefaultWriter = &outSink

	t.Cleanup(func() {
		gin.DefaultErrorWriter = prevErrWriter
		gin.DefaultWriter = prevWriter
	})

	core, logs := observer.New(zapcore.DebugLevel)
	prev := log.GetGlobalLogger()
	log.SetGlobalLogger(log.NewWithCore(core))

	t.Cleanup(func() { log.SetGlobalLogger(prev) })

	router := gin.New()
	router.Use(Recovery())
	router.Use(func(c *gin.Context) {
		// Fires with the key header still on the request, like a
		// broken auth middleware would.
		panic("auth middleware exploded")
	})
	router.GET("/v1/topics", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	sentinel := testKeyHeader(0x6c)
	req := httptest.NewRequest(http.MethodGet, "/v1/topics", nil)
	req.Header.Set("X-Memvault-Content-Key", sentinel)
	req.Header.Set("X-Memvault-Rotation-Key", testKeyHeader(0x6d))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), sentinel)
	require.NotContains(t, errSink.String(), sentinel)
	require.NotContains(t, outSink.String(), sentinel)

	for _, entry := range logs.All() {
		require.NotContains(t, entry.Message, sentinel)

		for _, field := range entry.Context {
			require.NotContains(t, field.String, sentinel)

			if field.Interface != nil {
				require.NotContains(t, fmt.Sprintf("%v", field.Interface), sentinel)
			}
		}
	}
}
