package handlers

import (
	"log/slog"
	"net/http"

	portssvc "github.com/apgms/apgms/internal/core/ports/services"
	"github.com/apgms/apgms/internal/dto"
	"github.com/apgms/apgms/internal/middleware"
	"github.com/gin-gonic/gin"
)

type ledgerHandler struct {
	ledgerService portssvc.LedgerSvcFacade
}

func newLedgerHandler(ls portssvc.LedgerSvcFacade) *ledgerHandler {
	return &ledgerHandler{ledgerService: ls}
}

// RegisterLedgerRoutes registers the OWA ledger routes.
func RegisterLedgerRoutes(rg *gin.RouterGroup, ledgerService portssvc.LedgerSvcFacade) {
	h := newLedgerHandler(ledgerService)

	ledger := rg.Group("/ledger")
	{
		ledger.POST("/append", h.append)
		ledger.POST("/verify", h.verify)
		ledger.GET("/:abn/:tax_type/:period_id", h.getLedger)
	}
}

// append godoc
// @Summary Append to a period ledger
// @Description Credits (positive) or debits (negative) the one-way account of a period. A repeated bank_receipt_hash returns the original entry.
// @Tags ledger
// @Accept  json
// @Produce  json
// @Param   entry body dto.LedgerAppendRequest true "Ledger entry"
// @Success 201 {object} domain.LedgerEntry
// @Failure 400 {object} dto.ErrorResponse "Invalid input"
// @Failure 422 {object} dto.ErrorResponse "Balance would go negative"
// @Security BearerAuth
// @Router /ledger/append [post]
func (h *ledgerHandler) append(c *gin.Context) {
	logger := middleware.GetLoggerFromContext(c)
	var req dto.LedgerAppendRequest
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

	entry, err := h.ledgerService.Append(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Ledger append failed")
		return
	}

	logger.Info("Ledger entry appended",
		slog.String("period", req.Key().String()),
		slog.Int64("seq", entry.Seq),
		slog.String("hash", entry.HashThis))
	c.JSON(http.StatusCreated, entry)
}

// getLedger godoc
// @Summary Get a period ledger
// @Description Returns the ledger snapshot and its entries in seq order
// @Tags ledger
// @Produce  json
// @Param   abn path string true "ABN"
// @Param   tax_type path string true "Tax type"
// @Param   period_id path string true "Period ID"
// @Success 200 {object} dto.LedgerView
// @Failure 400 {object} dto.ErrorResponse "Invalid input"
// @Security BearerAuth
// @Router /ledger/{abn}/{tax_type}/{period_id} [get]
func (h *ledgerHandler) getLedger(c *gin.Context) {
	var uri dto.PeriodURI
	if err := c.ShouldBindUri(&uri); err != nil {
		respondBindError(c, err)
		return
	}
	ctx := c.Request.Context()

	snap, err := h.ledgerService.Snapshot(ctx, uri.Key())
	if err != nil {
		respondError(c, err, "Failed to read ledger snapshot")
		return
	}
	entries, err := h.ledgerService.Entries(ctx, uri.Key())
	if err != nil {
		respondError(c, err, "Failed to list ledger entries")
		return
	}
	c.JSON(http.StatusOK, dto.LedgerView{Snapshot: *snap, Entries: entries})
}

// verify godoc
// @Summary Verify a period ledger chain
// @Description Recomputes the hash chain of a period and reports the first broken seq
// @Tags ledger
// @Accept  json
// @Produce  json
// @Param   period body dto.LedgerVerifyRequest true "Period"
// @Success 200 {object} domain.ChainReport
// @Failure 400 {object} dto.ErrorResponse "Invalid input"
// @Security BearerAuth
// @Router /ledger/verify [post]
func (h *ledgerHandler) verify(c *gin.Context) {
	var req dto.LedgerVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	report, err := h.ledgerService.Verify(c.Request.Context(), req.Key())
	if err != nil {
		respondError(c, err, "Ledger verification failed")
		return
	}
	c.JSON(http.StatusOK, report)
}
