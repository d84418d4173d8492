package handlers

import (
	"log/slog"
	"net/http"

	portssvc "github.com/apgms/apgms/internal/core/ports/services"
	"github.com/apgms/apgms/internal/dto"
	"github.com/apgms/apgms/internal/middleware"
	"github.com/gin-gonic/gin"
)

type rptHandler struct {
	rptService portssvc.RPTSvcFacade
}

func newRPTHandler(rs portssvc.RPTSvcFacade) *rptHandler {
	return &rptHandler{rptService: rs}
}

// RegisterRPTRoutes registers RPT issue and detached verification routes.
func RegisterRPTRoutes(rg *gin.RouterGroup, rptService portssvc.RPTSvcFacade) {
	h := newRPTHandler(rptService)

	rpt := rg.Group("/rpt")
	{
		rpt.POST("/issue", h.issue)
		rpt.POST("/verify", h.verify)
	}
}

// issue godoc
// @Summary Issue a remittance proof token
// @Description Issues an Ed25519 signed RPT for a period in RPT_ISSUED, bound to its ledger evidence
// @Tags rpt
// @Accept  json
// @Produce  json
// @Param   issue body dto.RPTIssueRequest true "Remittance details"
// @Success 201 {object} dto.RPTIssueResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid input"
// @Failure 409 {object} dto.ErrorResponse "Gate not ready"
// @Security BearerAuth
// @Router /rpt/issue [post]
func (h *rptHandler) issue(c *gin.Context) {
	logger := middleware.GetLoggerFromContext(c)
	var req dto.RPTIssueRequest
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

	resp, err := h.rptService.Issue(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "RPT issue failed")
		return
	}

	logger.Info("RPT issued",
		slog.String("period", req.Key().String()),
		slog.String("kid", resp.KeyID),
		slog.String("nonce", resp.Nonce))
	c.JSON(http.StatusCreated, resp)
}

// verify godoc
// @Summary Verify a detached RPT signature
// @Description Checks signature_b64 over the canonical payload_c14n with a trusted key selected by kid or pubkey_b64
// @Tags rpt
// @Accept  json
// @Produce  json
// @Param   verify body dto.RPTVerifyRequest true "Detached signature"
// @Success 200 {object} dto.RPTVerifyResponse
// @Failure 400 {object} dto.ErrorResponse "Malformed or invalid signature"
// @Security BearerAuth
// @Router /rpt/verify [post]
func (h *rptHandler) verify(c *gin.Context) {
	var req dto.RPTVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.rptService.VerifyDetached(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "RPT verification failed")
		return
	}
	c.JSON(http.StatusOK, resp)
}
