package domain

import "time"

type ReconStatus string

const (
	ReconOK   ReconStatus = "OK"
	ReconFail ReconStatus = "FAIL"
)

// ReconResult is a persisted reconciliation outcome. The latest per period wins.
type ReconResult struct {
	ID string `json:"id"`
	PeriodKey
	ExpectedCents  int64 `json:"expected_cents"`
	ActualCents    int64 `json:"actual_cents"`
	DeltaCents     int64 `json:"delta_cents"`
	ToleranceCents int64 `json:"tolerance_cents"`
	ToleranceBPS   int64 `json:"tolerance_bps"`
	// Anomaly values are parts per million.
	AnomalyScorePPM   int64       `json:"anomaly_score_ppm"`
	AnomalyCeilingPPM int64       `json:"anomaly_ceiling_ppm"`
	Status            ReconStatus `json:"status"`
	ReasonCodes       []string    `json:"reason_codes"`
	NextState         GateState   `json:"next_state"`
	CreatedAt         time.Time   `json:"created_at"`
}
