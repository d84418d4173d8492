package handlers

import (
	"net/http"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/core/domain"
	portssvc "github.com/apgms/apgms/internal/core/ports/services"
	"github.com/apgms/apgms/internal/dto"
	"github.com/gin-gonic/gin"
)

type auditHandler struct {
	auditService portssvc.AuditSvc
}

func newAuditHandler(as portssvc.AuditSvc) *auditHandler {
	return &auditHandler{auditService: as}
}

// RegisterAuditRoutes registers the audit bundle and chain verification routes.
func RegisterAuditRoutes(rg *gin.RouterGroup, auditService portssvc.AuditSvc) {
	h := newAuditHandler(auditService)

	audit := rg.Group("/audit")
	{
		audit.GET("/bundle/:period_id", h.bundle)
		audit.GET("/verify/:scope", h.verifyScope)
	}
}

// bundle godoc
// @Summary Audit bundle of a period
// @Description Returns every audit event of a period across scopes in ascending order
// @Tags audit
// @Produce  json
// @Param   period_id path string true "Period ID"
// @Param   abn query string false "ABN"
// @Success 200 {array} domain.AuditEvent
// @Failure 400 {object} dto.ErrorResponse "Invalid input"
// @Security BearerAuth
// @Router /audit/bundle/{period_id} [get]
func (h *auditHandler) bundle(c *gin.Context) {
	var q dto.AuditBundleQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}

	events, err := h.auditService.Bundle(c.Request.Context(), q.ABN, c.Param("period_id"))
	if err != nil {
		respondError(c, err, "Failed to build audit bundle")
		return
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}
	c.JSON(http.StatusOK, events)
}

// verifyScope godoc
// @Summary Verify an audit chain
// @Description Recomputes the hash chain of one audit scope
// @Tags audit
// @Produce  json
// @Param   scope path string true "Scope" Enums(bas_gate, ledger, egress, rpt)
// @Success 200 {object} domain.ChainReport
// @Failure 400 {object} dto.ErrorResponse "Unknown scope"
// @Security BearerAuth
// @Router /audit/verify/{scope} [get]
func (h *auditHandler) verifyScope(c *gin.Context) {
	scope := domain.AuditScope(c.Param("scope"))
	if !scope.Valid() {
		respondError(c, apperrors.Newf(apperrors.CodeInvalidPayload, "unknown audit scope %q", scope), "Invalid audit scope")
		return
	}

	report, err := h.auditService.VerifyScope(c.Request.Context(), scope)
	if err != nil {
		respondError(c, err, "Audit verification failed")
		return
	}
	c.JSON(http.StatusOK, report)
}
