package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/clinichub/clinichub/internal/tracing"
)

func TestWithTracing(t *testing.T) {
	gin.SetMode(gin.TestMode)

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	engine := gin.New()
	engine.Use(WithLoggingTracing(tracing.Config{
		TraceHeader: "CH-Trace-Id",
	}))

	engine.GET("/", func(c *gin.Context) {
		traceID, ok := tracing.GetTraceID(c.Request.Context())
		assert.True(t, ok)
		assert.NotEmpty(t, traceID)
		assert.Contains(t, traceID, "ch-")

		requestID, ok := tracing.GetRequestID(c.Request.Context())
		assert.True(t, ok)
		assert.Contains(t, requestID, "req-")

		c.Status(http.StatusOK)
	})

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("CH-Request-Id"))
}

func TestWithTracingExistingHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("CH-Trace-Id", "ch-existing-trace-id")

	w := httptest.NewRecorder()

	engine := gin.New()
	engine.Use(WithLoggingTracing(tracing.Config{
		TraceHeader: "CH-Trace-Id",
	}))

	engine.GET("/", func(c *gin.Context) {
		traceID, ok := tracing.GetTraceID(c.Request.Context())
		assert.True(t, ok)
		assert.Equal(t, "ch-existing-trace-id", traceID)
		c.Status(http.StatusOK)
	})

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWithTracingCustomHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Custom-Trace-Id", "ch-custom-trace-id")

	w := httptest.NewRecorder()

	engine := gin.New()
	engine.Use(WithLoggingTracing(tracing.Config{
		TraceHeader: "X-Custom-Trace-Id",
	}))

	engine.GET("/", func(c *gin.Context) {
		traceID, ok := tracing.GetTraceID(c.Request.Context())
		assert.True(t, ok)
		assert.Equal(t, "ch-custom-trace-id", traceID)
		c.Status(http.StatusOK)
	})

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
