package dto

import "github.com/apgms/apgms/internal/core/domain"

// PeriodRef identifies a period in request bodies.
type PeriodRef struct {
	ABN      string `json:"abn" form:"abn" binding:"required,abn"`
	TaxType  string `json:"tax_type" form:"tax_type" binding:"required,taxtype"`
	PeriodID string `json:"period_id" form:"period_id" binding:"required,max=64"`
}

// Key converts the reference to a domain key.
func (r PeriodRef) Key() domain.PeriodKey {
	return domain.PeriodKey{ABN: r.ABN, TaxType: domain.TaxType(r.TaxType), PeriodID: r.PeriodID}
}

// PeriodURI binds /{abn}/{tax_type}/{period_id} path parameters.
type PeriodURI struct {
	ABN      string `uri:"abn" binding:"required,abn"`
	TaxType  string `uri:"tax_type" binding:"required,taxtype"`
	PeriodID string `uri:"period_id" binding:"required,max=64"`
}

func (u PeriodURI) Key() domain.PeriodKey {
	return domain.PeriodKey{ABN: u.ABN, TaxType: domain.TaxType(u.TaxType), PeriodID: u.PeriodID}
}

// GateTransitionRequest asks the gate to move a period to TargetState.
type GateTransitionRequest struct {
	PeriodRef
	TargetState string `json:"target_state" binding:"required"`
	ReasonCode  string `json:"reason_code" binding:"max=256"`
	Actor       string `json:"actor" binding:"max=128"`
}

// GateTransitionResponse is the result of a gate transition.
type GateTransitionResponse struct {
	OK    bool   `json:"ok"`
	Hash  string `json:"hash"`
	State string `json:"state"`
}

// ToGateTransitionResponse converts a transition result to its response body
func ToGateTransitionResponse(r *domain.TransitionResult) GateTransitionResponse {
	return GateTransitionResponse{OK: true, Hash: r.Hash, State: string(r.Period.State)}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// AuditBundleQuery narrows an audit bundle to one entity.
type AuditBundleQuery struct {
	ABN string `form:"abn" binding:"omitempty,abn"`
}
