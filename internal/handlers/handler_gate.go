package handlers

import (
	"log/slog"
	"net/http"

	portssvc "github.com/apgms/apgms/internal/core/ports/services"
	"github.com/apgms/apgms/internal/dto"
	"github.com/apgms/apgms/internal/middleware"
	"github.com/gin-gonic/gin"
)

// gateHandler handles HTTP requests for the BAS gate.
type gateHandler struct {
	gateService portssvc.GateSvcFacade
}

func newGateHandler(gs portssvc.GateSvcFacade) *gateHandler {
	return &gateHandler{gateService: gs}
}

// RegisterGateRoutes registers gate transition and period read routes.
// transitionMW runs ahead of the transition handler, typically idempotency.
func RegisterGateRoutes(rg *gin.RouterGroup, gateService portssvc.GateSvcFacade, transitionMW ...gin.HandlerFunc) {
	h := newGateHandler(gateService)

	rg.POST("/gate/transition", append(transitionMW, h.transition)...)
	rg.GET("/periods/:abn/:tax_type/:period_id", h.getPeriod)
}

// transition godoc
// @Summary Transition a period's BAS gate
// @Description Moves a period to target_state. BLOCKED requires a reason code. The first transition opens the period.
// @Tags gate
// @Accept  json
// @Produce  json
// @Param   Idempotency-Key header string false "Idempotency key"
// @Param   transition body dto.GateTransitionRequest true "Transition"
// @Success 200 {object} dto.GateTransitionResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid input"
// @Failure 403 {object} dto.ErrorResponse "Separation of duties"
// @Failure 409 {object} dto.ErrorResponse "Invalid transition"
// @Failure 422 {object} dto.ErrorResponse "BLOCKED requires a reason"
// @Security BearerAuth
// @Router /gate/transition [post]
func (h *gateHandler) transition(c *gin.Context) {
	logger := middleware.GetLoggerFromContext(c)
	var req dto.GateTransitionRequest
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

	logger = logger.With(slog.String("period", req.Key().String()), slog.String("target_state", req.TargetState))
	logger.Info("Received gate transition request")

	res, err := h.gateService.Transition(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Gate transition failed")
		return
	}

	logger.Info("Gate transitioned", slog.String("hash", res.Hash))
	c.JSON(http.StatusOK, dto.ToGateTransitionResponse(res))
}

// getPeriod godoc
// @Summary Get a period
// @Description Returns the gate row of a period
// @Tags gate
// @Produce  json
// @Param   abn path string true "ABN"
// @Param   tax_type path string true "Tax type"
// @Param   period_id path string true "Period ID"
// @Success 200 {object} domain.Period
// @Failure 400 {object} dto.ErrorResponse "Invalid input"
// @Failure 404 {object} dto.ErrorResponse "Period not found"
// @Security BearerAuth
// @Router /periods/{abn}/{tax_type}/{period_id} [get]
func (h *gateHandler) getPeriod(c *gin.Context) {
	var uri dto.PeriodURI
	if err := c.ShouldBindUri(&uri); err != nil {
		respondBindError(c, err)
		return
	}

	period, err := h.gateService.GetPeriod(c.Request.Context(), uri.Key())
	if err != nil {
		respondError(c, err, "Failed to get period")
		return
	}
	c.JSON(http.StatusOK, period)
}
