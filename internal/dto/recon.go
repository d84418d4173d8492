package dto

import "github.com/apgms/apgms/internal/core/domain"

// ReconStatusRequest selects the period whose latest result is returned.
type ReconStatusRequest struct {
	PeriodRef
}

// TaxSummaryInput carries totals computed by the external tax engines.
// AnomalyScore is a decimal string such as "0.05".
type TaxSummaryInput struct {
	PAYGWCents   int64            `json:"paygw_cents" binding:"gte=0"`
	GSTCents     int64            `json:"gst_cents" binding:"gte=0"`
	AnomalyScore string           `json:"anomaly_score" binding:"omitempty,numeric"`
	Metrics      map[string]int64 `json:"metrics"`
}

// LedgerActualsInput overrides the balances read from the ledger.
type LedgerActualsInput struct {
	PAYGWCents int64 `json:"paygw_cents"`
	GSTCents   int64 `json:"gst_cents"`
}

// TolerancesInput bounds accepted deltas. AnomalyCeiling is a decimal string.
type TolerancesInput struct {
	AbsCents       int64  `json:"abs_cents" binding:"gte=0"`
	BPS            int64  `json:"bps" binding:"gte=0,lte=10000"`
	AnomalyCeiling string `json:"anomaly_ceiling" binding:"omitempty,numeric"`
}

// RemittanceInput describes where an RPT authorises payment.
type RemittanceInput struct {
	RailID        string `json:"rail_id" binding:"required,max=64"`
	DestinationID string `json:"destination_id" binding:"required,max=128"`
	Reference     string `json:"reference" binding:"required,max=128"`
	// ExpiryTS is a unix timestamp; zero applies the configured TTL.
	ExpiryTS int64 `json:"expiry_ts" binding:"gte=0"`
}

// ReconRunRequest evaluates a period. With Apply set the gate is driven from
// RECONCILING to the directive's next state, and with Remittance set an RPT
// is issued when that state is RPT_ISSUED.
type ReconRunRequest struct {
	PeriodRef
	Summary    TaxSummaryInput     `json:"summary"`
	Actuals    *LedgerActualsInput `json:"actuals"`
	Tolerances TolerancesInput     `json:"tolerances"`
	Apply      bool                `json:"apply"`
	Actor      string              `json:"actor" binding:"max=128"`
	Remittance *RemittanceInput    `json:"remittance"`
}

// ReconRunResponse is the evaluation outcome and any follow-on effects.
type ReconRunResponse struct {
	Result     domain.ReconResult      `json:"result"`
	Metrics    map[string]int64        `json:"metrics"`
	Transition *GateTransitionResponse `json:"transition,omitempty"`
	RPT        *RPTIssueResponse       `json:"rpt,omitempty"`
}
