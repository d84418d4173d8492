package handlers

import (
	"log/slog"
	"net/http"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/dto"
	"github.com/apgms/apgms/internal/middleware"
	"github.com/gin-gonic/gin"
)

// respondError writes err as {error, detail} with its taxonomy status and
// records the failure cause for the idempotency and logging middleware.
func respondError(c *gin.Context, err error, msg string) {
	logger := middleware.GetLoggerFromContext(c)
	appErr := apperrors.From(err)
	middleware.SetFailureCause(c, string(appErr.FailureCause()))

	attrs := []any{
		slog.String("error", err.Error()),
		slog.String("error_code", string(appErr.Code)),
	}
	if appErr.Status >= http.StatusInternalServerError {
		logger.Error(msg, attrs...)
	} else {
		logger.Warn(msg, attrs...)
	}

	detail := appErr.Detail
	if appErr.Code == apperrors.CodeInternal {
		// Internal details stay in the log; the caller gets the request ID to quote.
		detail = ""
		if id := middleware.GetRequestIDFromCtx(c.Request.Context()); id != "" {
			detail = "reference " + id
		}
	}
	c.JSON(appErr.Status, dto.ErrorResponse{Error: string(appErr.Code), Detail: detail})
}

// respondBindError reports a request that failed JSON, URI or query binding.
func respondBindError(c *gin.Context, err error) {
	respondError(c, apperrors.Wrap(apperrors.CodeInvalidPayload, "Invalid request format: "+err.Error(), err), "Failed to bind request")
}

// resolveActor returns the acting principal. When the request is
// authenticated the token subject is the actor and a conflicting body actor
// is rejected.
func resolveActor(c *gin.Context, bodyActor string) (string, error) {
	subject, ok := middleware.GetActorFromContext(c)
	if !ok {
		return bodyActor, nil
	}
	if bodyActor != "" && bodyActor != subject {
		return "", apperrors.New(apperrors.CodeForbidden, "actor does not match the authenticated subject")
	}
	return subject, nil
}
