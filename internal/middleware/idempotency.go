package middleware

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/core/domain"
	portssvc "github.com/apgms/apgms/internal/core/ports/services"
	"github.com/gin-gonic/gin"
)

const (
	HeaderIdempotencyKey      = "Idempotency-Key"
	HeaderIdempotencyReplayed = "Idempotency-Replayed"

	idempotencyKeyCtx = contextKey("idempotencyKey")
)

// headers that describe a single exchange and are never replayed
var volatileHeaders = canonicalSet(
	"Content-Length",
	"Content-Type",
	"Date",
	HeaderRequestID,
	HeaderTraceID,
	HeaderIdempotencyKey,
	"X-RateLimit-Limit",
	"X-RateLimit-Remaining",
	"X-RateLimit-Reset",
)

func canonicalSet(keys ...string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[http.CanonicalHeaderKey(k)] = true
	}
	return set
}

// IdempotencyOptions configures Idempotency for one route.
type IdempotencyOptions struct {
	// Scope prefixes the stored key so equal client keys on different routes
	// do not collide.
	Scope string
	TTL   time.Duration
	// Required rejects requests without an Idempotency-Key header.
	Required bool
}

// Idempotency enforces at-most-once execution per Idempotency-Key. The first
// request runs the handler and its response is recorded: 2xx responses are
// marked applied and replayed verbatim, other responses are marked failed with
// the cause set by the handler and replayed until the key expires. Concurrent
// duplicates are rejected with IDEMPOTENCY_IN_PROGRESS.
func Idempotency(svc portssvc.IdempotencySvc, opts IdempotencyOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if clientKey == "" {
			if opts.Required {
				SetFailureCause(c, string(apperrors.CodeInvalidPayload))
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": apperrors.CodeInvalidPayload, "detail": HeaderIdempotencyKey + " header is required"})
				return
			}
			c.Next()
			return
		}

		logger := GetLoggerFromContext(c).With(slog.String("idempotency_key", clientKey))
		key := opts.Scope + ":" + clientKey
		c.Header(HeaderIdempotencyKey, clientKey)

		res, err := svc.Acquire(c.Request.Context(), key, opts.TTL, false)
		if err != nil {
			appErr := apperrors.From(err)
			logger.Error("Failed to acquire idempotency key", slog.String("error", err.Error()))
			SetFailureCause(c, string(appErr.Code))
			c.AbortWithStatusJSON(appErr.Status, gin.H{"error": appErr.Code, "detail": appErr.Detail})
			return
		}

		switch res.Outcome {
		case domain.OutcomeReplay:
			logger.Info("Replaying applied response")
			writeCached(c, res.Record.Response)
			return
		case domain.OutcomeFailed:
			if res.Record.Response.HTTPStatus != 0 {
				logger.Info("Replaying failed response", slog.String("cause", res.Record.FailureCause))
				writeCached(c, res.Record.Response)
				return
			}
			SetFailureCause(c, string(apperrors.CodeIdempotencyFailed))
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error":  apperrors.CodeIdempotencyFailed,
				"detail": fmt.Sprintf("a previous attempt failed with %s", res.Record.FailureCause),
			})
			return
		case domain.OutcomeInProgress:
			SetFailureCause(c, string(apperrors.CodeIdempotencyInProgress))
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error":  apperrors.CodeIdempotencyInProgress,
				"detail": "a request with this key is still being processed",
			})
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), idempotencyKeyCtx, clientKey))

		c.Next()

		// The outcome is recorded even when the client has gone away.
		ctx := context.WithoutCancel(c.Request.Context())
		cached := domain.CachedResponse{
			HTTPStatus:  recorder.Status(),
			Body:        recorder.body.Bytes(),
			Headers:     replayableHeaders(recorder.Header()),
			ContentType: recorder.Header().Get("Content-Type"),
		}
		if cached.HTTPStatus >= 200 && cached.HTTPStatus < 300 {
			if err := svc.MarkApplied(ctx, key, cached); err != nil {
				logger.Error("Failed to mark idempotency key applied", slog.String("error", err.Error()))
			}
			return
		}
		cause, ok := FailureCause(c)
		if !ok {
			cause = fmt.Sprintf("HTTP_%d", cached.HTTPStatus)
		}
		if err := svc.MarkFailed(ctx, key, cause, &cached); err != nil {
			logger.Error("Failed to mark idempotency key failed", slog.String("error", err.Error()))
		}
	}
}

// GetIdempotencyKey returns the client key accepted by Idempotency.
func GetIdempotencyKey(c *gin.Context) string {
	if key, ok := c.Request.Context().Value(idempotencyKeyCtx).(string); ok {
		return key
	}
	return strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
}

func writeCached(c *gin.Context, resp domain.CachedResponse) {
	for k, v := range resp.Headers {
		c.Header(k, v)
	}
	c.Header(HeaderIdempotencyReplayed, "true")
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json; charset=utf-8"
	}
	c.Data(resp.HTTPStatus, contentType, resp.Body)
	c.Abort()
}

func replayableHeaders(h http.Header) map[string]string {
	out := make(map[string]string)
	for k := range h {
		if volatileHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		out[k] = h.Get(k)
	}
	return out
}

// bodyRecorder tees the response body so it can be stored.
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
