package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apgms/apgms/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestStructuredLoggingScopesRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	var requestID string
	r := gin.New()
	r.Use(middleware.StructuredLoggingMiddleware(base))
	r.GET("/healthz", func(c *gin.Context) {
		requestID = middleware.GetRequestIDFromCtx(c.Request.Context())
		middleware.GetLoggerFromContext(c).Info("handled")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(middleware.HeaderRequestID, "req-7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-7", requestID)
	assert.Equal(t, "req-7", w.Header().Get(middleware.HeaderTraceID))
	assert.Contains(t, buf.String(), `"msg":"handled","request_id":"req-7"`)
}

func TestLoggerFallsBackOutsideMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	assert.Same(t, slog.Default(), middleware.GetLoggerFromContext(c))
	assert.Empty(t, middleware.GetRequestIDFromCtx(c.Request.Context()))
}
