package handlers

import (
	"log/slog"
	"net/http"

	portssvc "github.com/apgms/apgms/internal/core/ports/services"
	"github.com/apgms/apgms/internal/dto"
	"github.com/apgms/apgms/internal/middleware"
	"github.com/gin-gonic/gin"
)

type remitHandler struct {
	remitService portssvc.RemitSvc
}

func newRemitHandler(rs portssvc.RemitSvc) *remitHandler {
	return &remitHandler{remitService: rs}
}

// RegisterRemitRoutes registers the egress route behind mw, which normally
// carries the rate limiter and idempotency enforcement.
func RegisterRemitRoutes(rg *gin.RouterGroup, remitService portssvc.RemitSvc, mw ...gin.HandlerFunc) {
	h := newRemitHandler(remitService)

	rg.POST("/egress/remit", append(mw, h.remit)...)
}

// remit godoc
// @Summary Remit an issued RPT
// @Description Verifies the RPT, pays it through the bank rail, then debits the ledger and marks the period REMITTED
// @Tags egress
// @Accept  json
// @Produce  json
// @Param   Idempotency-Key header string true "Idempotency key"
// @Param   X-Trace-Id header string false "Trace ID, echoed back"
// @Param   remit body dto.RemitRequest true "Remittance"
// @Success 200 {object} dto.RemitResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid input or RPT"
// @Failure 403 {object} dto.ErrorResponse "Separation of duties"
// @Failure 409 {object} dto.ErrorResponse "Gate not ready or idempotency conflict"
// @Failure 429 {object} dto.ErrorResponse "Rate limited"
// @Failure 502 {object} dto.ErrorResponse "Bank rail error"
// @Failure 503 {object} dto.ErrorResponse "Kill switch engaged"
// @Security BearerAuth
// @Router /egress/remit [post]
func (h *remitHandler) remit(c *gin.Context) {
	logger := middleware.GetLoggerFromContext(c)
	var req dto.RemitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	actor, err := resolveActor(c, req.Actor)
	if err != nil {
		respondError(c, err, "Actor rejected")
		return
	}
	req.Actor = actor
	req.IdempotencyKey = middleware.GetIdempotencyKey(c)

	logger = logger.With(slog.String("period_id", req.PeriodID), slog.String("actor", req.Actor))
	logger.Info("Received remit request")

	resp, err := h.remitService.Remit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Remit failed")
		return
	}

	logger.Info("Remit succeeded", slog.String("bank_reference", resp.BankReference))
	c.JSON(http.StatusOK, resp)
}
