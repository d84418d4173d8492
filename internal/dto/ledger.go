package dto

import "github.com/apgms/apgms/internal/core/domain"

// LedgerAppendRequest credits (positive) or debits (negative) a period ledger.
type LedgerAppendRequest struct {
	PeriodRef
	AmountCents     int64  `json:"amount_cents" binding:"required"`
	BankReceiptHash string `json:"bank_receipt_hash" binding:"omitempty,max=128"`
	Actor           string `json:"actor" binding:"max=128"`
}

// LedgerView is a snapshot plus the entries it summarises.
type LedgerView struct {
	Snapshot domain.LedgerSnapshot `json:"snapshot"`
	Entries  []domain.LedgerEntry  `json:"entries"`
}

// LedgerVerifyRequest selects the period chain to recompute.
type LedgerVerifyRequest struct {
	PeriodRef
}
