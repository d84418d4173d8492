// Package recon compares computed tax totals with ledger balances and emits a
// reason coded gate directive. All arithmetic is integer.
package recon

import (
	"math"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/core/domain"
	"github.com/shopspring/decimal"
)

const (
	ReasonPAYGWShortfall = "PAYGW_SHORTFALL"
	ReasonPAYGWExcess    = "PAYGW_EXCESS"
	ReasonGSTShortfall   = "GST_SHORTFALL"
	ReasonGSTExcess      = "GST_EXCESS"
	ReasonAnomalyBreach  = "ANOMALY_BREACH"
)

// PPM is the scale of anomaly scores: 1.0 == 1_000_000.
const PPM = 1_000_000

const maxBPS = 10_000

// TaxSummary holds externally computed totals for a period.
type TaxSummary struct {
	PAYGWCents      int64
	GSTCents        int64
	AnomalyScorePPM int64
	Metrics         map[string]int64
}

// LedgerSnapshot holds the ledger balances the totals are compared against.
type LedgerSnapshot struct {
	PAYGWCents int64
	GSTCents   int64
}

// Tolerances bound the accepted deltas.
type Tolerances struct {
	AbsCents          int64
	BPS               int64
	AnomalyCeilingPPM int64
}

// Validate rejects negative or out of range tolerances.
func (t Tolerances) Validate() error {
	if t.AbsCents < 0 {
		return apperrors.New(apperrors.CodeInvalidPayload, "tolerance abs_cents must be non-negative")
	}
	if t.BPS < 0 || t.BPS > maxBPS {
		return apperrors.Newf(apperrors.CodeInvalidPayload, "tolerance bps must be within 0..%d", maxBPS)
	}
	if t.AnomalyCeilingPPM < 0 {
		return apperrors.New(apperrors.CodeInvalidPayload, "anomaly ceiling must be non-negative")
	}
	return nil
}

// Comparison is the outcome for one tax line.
type Comparison struct {
	ExpectedCents int64
	ActualCents   int64
	DeltaCents    int64
	AllowedCents  int64
}

// Directive is the evaluator output.
type Directive struct {
	Status      domain.ReconStatus
	ReasonCodes []string
	NextState   domain.GateState
	PAYGW       Comparison
	GST         Comparison
	Metrics     map[string]int64
}

// Allowed is max(abs, |expected| * bps / 10000).
// The product is split around maxBPS so it cannot overflow for bps in range.
func Allowed(expected, absCents, bps int64) int64 {
	switch {
	case expected == math.MinInt64:
		expected = math.MaxInt64
	case expected < 0:
		expected = -expected
	}
	proportional := expected/maxBPS*bps + expected%maxBPS*bps/maxBPS
	if proportional > absCents {
		return proportional
	}
	return absCents
}

func compare(expected, actual int64, tol Tolerances) Comparison {
	return Comparison{
		ExpectedCents: expected,
		ActualCents:   actual,
		DeltaCents:    actual - expected,
		AllowedCents:  Allowed(expected, tol.AbsCents, tol.BPS),
	}
}

// Evaluate runs the reconciliation. It is a pure function of its inputs.
func Evaluate(summary TaxSummary, snapshot LedgerSnapshot, tol Tolerances) Directive {
	paygw := compare(summary.PAYGWCents, snapshot.PAYGWCents, tol)
	gst := compare(summary.GSTCents, snapshot.GSTCents, tol)

	reasons := make([]string, 0, 3)
	switch {
	case paygw.DeltaCents < -paygw.AllowedCents:
		reasons = append(reasons, ReasonPAYGWShortfall)
	case paygw.DeltaCents > paygw.AllowedCents:
		reasons = append(reasons, ReasonPAYGWExcess)
	}
	switch {
	case gst.DeltaCents < -gst.AllowedCents:
		reasons = append(reasons, ReasonGSTShortfall)
	case gst.DeltaCents > gst.AllowedCents:
		reasons = append(reasons, ReasonGSTExcess)
	}
	if summary.AnomalyScorePPM > tol.AnomalyCeilingPPM {
		reasons = append(reasons, ReasonAnomalyBreach)
	}

	d := Directive{
		Status:      domain.ReconOK,
		ReasonCodes: reasons,
		NextState:   domain.StateRPTIssued,
		PAYGW:       paygw,
		GST:         gst,
		Metrics:     copyMetrics(summary.Metrics),
	}
	if len(reasons) > 0 {
		d.Status = domain.ReconFail
		d.NextState = domain.StateBlocked
	}
	return d
}

// For returns the comparison that belongs to taxType. Tax types other than
// PAYGW and GST are reported against the combined totals.
func (d Directive) For(taxType domain.TaxType) Comparison {
	switch taxType {
	case domain.TaxTypePAYGW:
		return d.PAYGW
	case domain.TaxTypeGST:
		return d.GST
	}
	return Comparison{
		ExpectedCents: d.PAYGW.ExpectedCents + d.GST.ExpectedCents,
		ActualCents:   d.PAYGW.ActualCents + d.GST.ActualCents,
		DeltaCents:    d.PAYGW.DeltaCents + d.GST.DeltaCents,
		AllowedCents:  d.PAYGW.AllowedCents + d.GST.AllowedCents,
	}
}

// ParseScore converts a decimal score such as "0.05" into parts per million,
// rounding half away from zero at the sixth decimal place.
func ParseScore(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeInvalidPayload, "score is not a decimal number", err)
	}
	if d.IsNegative() {
		return 0, apperrors.Newf(apperrors.CodeInvalidPayload, "score %s must be non-negative", s)
	}
	return d.Mul(decimal.NewFromInt(PPM)).Round(0).IntPart(), nil
}

func copyMetrics(m map[string]int64) map[string]int64 {
	if m == nil {
		return map[string]int64{}
	}
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
