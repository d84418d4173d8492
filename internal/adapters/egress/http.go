// Package egress holds the bank rail providers used by remittance.
package egress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/canonical"
	"github.com/apgms/apgms/internal/core/ports/gateways"
	"github.com/shopspring/decimal"
)

const maxResponseBytes = 1 << 20

// HTTPRail posts remittance instructions to a bank rail gateway.
type HTTPRail struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRail(baseURL string, timeout time.Duration) *HTTPRail {
	return &HTTPRail{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type railRequest struct {
	RailID        string `json:"rail_id"`
	DestinationID string `json:"destination_id"`
	Reference     string `json:"reference"`
	// Amount is in dollars with exactly two decimals.
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
	ABN         string `json:"abn"`
	TaxType     string `json:"tax_type"`
	PeriodID    string `json:"period_id"`
	Nonce       string `json:"nonce"`
}

type railResponse struct {
	BankReference string `json:"bank_reference"`
}

// FormatDollars renders integer cents as a dollar amount, e.g. 12345 -> "123.45".
func FormatDollars(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

func (r *HTTPRail) Remit(ctx context.Context, instr gateways.Instruction) (*gateways.Receipt, error) {
	payload, err := json.Marshal(railRequest{
		RailID:        instr.RailID,
		DestinationID: instr.DestinationID,
		Reference:     instr.Reference,
		Amount:        FormatDollars(instr.AmountCents),
		AmountCents:   instr.AmountCents,
		ABN:           instr.ABN,
		TaxType:       string(instr.TaxType),
		PeriodID:      instr.PeriodID,
		Nonce:         instr.Nonce,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "encoding rail instruction", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/remittances", bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "building rail request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	idemKey := instr.IdempotencyKey
	if idemKey == "" {
		idemKey = instr.Nonce
	}
	req.Header.Set("Idempotency-Key", idemKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classify(ctx, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, apperrors.Newf(apperrors.CodeUpstreamError, "rail responded with status %d", resp.StatusCode)
	}

	var out railResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUpstreamError, "rail response is not JSON", err)
	}
	if out.BankReference == "" {
		return nil, apperrors.New(apperrors.CodeUpstreamError, "rail response has no bank_reference")
	}
	normalized, err := canonical.Normalize(body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUpstreamError, "rail response cannot be canonicalised", err)
	}
	return &gateways.Receipt{
		BankReference: out.BankReference,
		ReceiptHash:   canonical.SHA256Hex(normalized),
	}, nil
}

// classify maps transport failures to TIMEOUT or UPSTREAM_ERROR.
func classify(ctx context.Context, err error) error {
	var netErr interface{ Timeout() bool }
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.Wrap(apperrors.CodeTimeout, "rail call timed out", err)
	}
	return apperrors.Wrap(apperrors.CodeUpstreamError, fmt.Sprintf("rail call failed: %v", err), err)
}
