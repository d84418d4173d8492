package egress

import (
	"context"
	"strings"
	"sync"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/canonical"
	"github.com/apgms/apgms/internal/core/ports/gateways"
)

// Sandbox is a deterministic in-process rail. The same instruction always
// yields the same receipt. Calls counts successful remittances.
type Sandbox struct {
	mu    sync.Mutex
	calls int
	// FailWith, when set, is returned instead of a receipt.
	FailWith error
}

func NewSandbox() *Sandbox {
	return &Sandbox{}
}

func (s *Sandbox) Remit(ctx context.Context, instr gateways.Instruction) (*gateways.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTimeout, "sandbox rail call cancelled", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	body, err := canonical.Marshal(map[string]any{
		"abn":            instr.ABN,
		"tax_type":       string(instr.TaxType),
		"period_id":      instr.PeriodID,
		"amount":         FormatDollars(instr.AmountCents),
		"rail_id":        instr.RailID,
		"destination_id": instr.DestinationID,
		"reference":      instr.Reference,
		"nonce":          instr.Nonce,
	})
	if err != nil {
		return nil, err
	}
	digest := canonical.SHA256Hex(body)
	s.calls++
	return &gateways.Receipt{
		BankReference: "SBX-" + strings.ToUpper(digest[:16]),
		ReceiptHash:   digest,
	}, nil
}

// Calls returns the number of receipts issued.
func (s *Sandbox) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
