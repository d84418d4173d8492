package domain

import (
	"encoding/json"
	"time"
)

// AuditScope names an independent audit hash chain.
type AuditScope string

const (
	ScopeBASGate AuditScope = "bas_gate"
	ScopeLedger  AuditScope = "ledger"
	ScopeEgress  AuditScope = "egress"
	ScopeRPT     AuditScope = "rpt"
)

// Valid reports whether s is a known scope.
func (s AuditScope) Valid() bool {
	switch s {
	case ScopeBASGate, ScopeLedger, ScopeEgress, ScopeRPT:
		return true
	}
	return false
}

// AuditEvent is one link of a scope chain. Payload holds the canonical bytes
// that were hashed.
type AuditEvent struct {
	ID        int64           `json:"id"`
	Scope     AuditScope      `json:"scope"`
	ABN       string          `json:"abn"`
	TaxType   TaxType         `json:"tax_type,omitempty"`
	PeriodID  string          `json:"period_id"`
	EventKind string          `json:"event_kind"`
	Actor     string          `json:"actor,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	HashPrev  string          `json:"hash_prev,omitempty"`
	HashThis  string          `json:"hash_this"`
	CreatedAt time.Time       `json:"created_at"`
}
