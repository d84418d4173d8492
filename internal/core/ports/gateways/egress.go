package gateways

import (
	"context"

	"github.com/apgms/apgms/internal/core/domain"
)

// Instruction is a single remittance sent to the bank rail.
type Instruction struct {
	domain.PeriodKey
	AmountCents    int64
	RailID         string
	DestinationID  string
	Reference      string
	IdempotencyKey string
	Nonce          string
}

// Receipt is the rail's acknowledgement.
type Receipt struct {
	BankReference string
	// ReceiptHash is the SHA-256 hex digest of the canonical rail response.
	ReceiptHash string
}

// EgressProvider performs the external remittance side effect. Errors carry
// UPSTREAM_ERROR, TIMEOUT or KILL_SWITCH.
type EgressProvider interface {
	Remit(ctx context.Context, instr Instruction) (*Receipt, error)
}
