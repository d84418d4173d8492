package handlers

import (
	"log/slog"
	"net/http"

	portssvc "github.com/apgms/apgms/internal/core/ports/services"
	"github.com/apgms/apgms/internal/dto"
	"github.com/apgms/apgms/internal/middleware"
	"github.com/gin-gonic/gin"
)

type reconHandler struct {
	reconService portssvc.ReconSvcFacade
}

func newReconHandler(rs portssvc.ReconSvcFacade) *reconHandler {
	return &reconHandler{reconService: rs}
}

// RegisterReconRoutes registers reconciliation routes.
func RegisterReconRoutes(rg *gin.RouterGroup, reconService portssvc.ReconSvcFacade) {
	h := newReconHandler(reconService)

	recon := rg.Group("/recon")
	{
		recon.POST("/run", h.run)
		recon.POST("/status", h.status)
		recon.GET("/status", h.status)
	}
}

// run godoc
// @Summary Reconcile a period
// @Description Evaluates the tax summary against the ledger and stores the result. With apply set the gate moves from RECONCILING to the result's next state, and with remittance set an RPT is issued when that state is RPT_ISSUED.
// @Tags recon
// @Accept  json
// @Produce  json
// @Param   run body dto.ReconRunRequest true "Reconciliation input"
// @Success 200 {object} dto.ReconRunResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid input"
// @Failure 409 {object} dto.ErrorResponse "Period is not reconciling"
// @Security BearerAuth
// @Router /recon/run [post]
func (h *reconHandler) run(c *gin.Context) {
	logger := middleware.GetLoggerFromContext(c)
	var req dto.ReconRunRequest
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

	resp, err := h.reconService.Run(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Reconciliation failed")
		return
	}

	logger.Info("Reconciliation completed",
		slog.String("period", req.Key().String()),
		slog.String("status", string(resp.Result.Status)),
		slog.Any("reason_codes", resp.Result.ReasonCodes))
	c.JSON(http.StatusOK, resp)
}

// status godoc
// @Summary Latest reconciliation result
// @Description Returns the most recent reconciliation result of a period. Accepts a JSON body on POST or query parameters on GET.
// @Tags recon
// @Accept  json
// @Produce  json
// @Param   period body dto.ReconStatusRequest false "Period"
// @Success 200 {object} domain.ReconResult
// @Failure 400 {object} dto.ErrorResponse "Invalid input"
// @Failure 404 {object} dto.ErrorResponse "No result yet"
// @Security BearerAuth
// @Router /recon/status [post]
func (h *reconHandler) status(c *gin.Context) {
	var req dto.ReconStatusRequest
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(&req)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.reconService.Status(c.Request.Context(), req.Key())
	if err != nil {
		respondError(c, err, "Failed to read reconciliation status")
		return
	}
	c.JSON(http.StatusOK, result)
}
