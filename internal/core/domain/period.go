package domain

import "time"

// GateState is a BAS gate state.
type GateState string

const (
	StateOpen         GateState = "OPEN"
	StatePendingClose GateState = "PENDING_CLOSE"
	StateReconciling  GateState = "RECONCILING"
	StateRPTIssued    GateState = "RPT_ISSUED"
	StateRemitted     GateState = "REMITTED"
	StateBlocked      GateState = "BLOCKED"
)

var allowedTransitions = map[GateState][]GateState{
	StateOpen:         {StatePendingClose, StateBlocked},
	StatePendingClose: {StateReconciling, StateBlocked},
	StateReconciling:  {StateRPTIssued, StateBlocked},
	StateRPTIssued:    {StateRemitted, StateBlocked},
	StateRemitted:     {},
	StateBlocked:      {StateReconciling, StateOpen},
}

// ParseGateState returns the state named s.
func ParseGateState(s string) (GateState, bool) {
	st := GateState(s)
	_, ok := allowedTransitions[st]
	return st, ok
}

// CanTransitionTo reports whether the gate graph has an edge s -> next.
func (s GateState) CanTransitionTo(next GateState) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s GateState) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

// Period is the gate row for one (abn, tax_type, period_id).
type Period struct {
	PeriodKey
	State               GateState `json:"state"`
	ReasonCode          string    `json:"reason_code,omitempty"`
	AccruedCents        int64     `json:"accrued_cents"`
	CreditedCents       int64     `json:"credited_cents"`
	FinalLiabilityCents int64     `json:"final_liability_cents"`
	MerkleRoot          string    `json:"merkle_root,omitempty"`
	RunningBalanceHash  string    `json:"running_balance_hash,omitempty"`
	HashPrev            string    `json:"hash_prev,omitempty"`
	HashThis            string    `json:"hash_this"`
	// RPTIssuedBy is the actor that drove RECONCILING -> RPT_ISSUED.
	RPTIssuedBy string    `json:"rpt_issued_by,omitempty"`
	LastActor   string    `json:"last_actor,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TransitionPayload is the hashed body of one gate transition.
func TransitionPayload(periodID string, state GateState, reasonCode, actor string, ts time.Time) map[string]any {
	return map[string]any{
		"period_id":   periodID,
		"state":       string(state),
		"reason_code": nullable(reasonCode),
		"actor":       nullable(actor),
		"ts":          FormatTimestamp(ts),
	}
}

// TransitionResult is returned by a gate transition.
type TransitionResult struct {
	Period  Period `json:"period"`
	Hash    string `json:"hash"`
	Applied bool   `json:"applied"`
}
