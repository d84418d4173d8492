package mapping

import (
	"encoding/json"
	"time"

	"github.com/apgms/apgms/internal/core/domain"
	"github.com/apgms/apgms/internal/models"
)

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// ToModelPeriod converts a domain Period to a periods row
func ToModelPeriod(d domain.Period) models.Period {
	return models.Period{
		ABN:                 d.ABN,
		TaxType:             string(d.TaxType),
		PeriodID:            d.PeriodID,
		State:               string(d.State),
		ReasonCode:          strPtr(d.ReasonCode),
		AccruedCents:        d.AccruedCents,
		CreditedCents:       d.CreditedCents,
		FinalLiabilityCents: d.FinalLiabilityCents,
		MerkleRoot:          strPtr(d.MerkleRoot),
		RunningBalanceHash:  strPtr(d.RunningBalanceHash),
		HashPrev:            strPtr(d.HashPrev),
		HashThis:            d.HashThis,
		RPTIssuedBy:         strPtr(d.RPTIssuedBy),
		LastActor:           strPtr(d.LastActor),
		UpdatedAt:           d.UpdatedAt,
	}
}

// ToDomainPeriod converts a periods row to a domain Period
func ToDomainPeriod(m models.Period) domain.Period {
	return domain.Period{
		PeriodKey:           domain.PeriodKey{ABN: m.ABN, TaxType: domain.TaxType(m.TaxType), PeriodID: m.PeriodID},
		State:               domain.GateState(m.State),
		ReasonCode:          strVal(m.ReasonCode),
		AccruedCents:        m.AccruedCents,
		CreditedCents:       m.CreditedCents,
		FinalLiabilityCents: m.FinalLiabilityCents,
		MerkleRoot:          strVal(m.MerkleRoot),
		RunningBalanceHash:  strVal(m.RunningBalanceHash),
		HashPrev:            strVal(m.HashPrev),
		HashThis:            m.HashThis,
		RPTIssuedBy:         strVal(m.RPTIssuedBy),
		LastActor:           strVal(m.LastActor),
		UpdatedAt:           m.UpdatedAt.UTC(),
	}
}

// ToModelLedgerEntry converts a domain LedgerEntry to an owa_ledger row
func ToModelLedgerEntry(d domain.LedgerEntry) models.LedgerEntry {
	return models.LedgerEntry{
		ID:                d.EntryID,
		ABN:               d.ABN,
		TaxType:           string(d.TaxType),
		PeriodID:          d.PeriodID,
		Seq:               d.Seq,
		AmountCents:       d.AmountCents,
		BalanceAfterCents: d.BalanceAfterCents,
		BankReceiptHash:   strPtr(d.BankReceiptHash),
		HashPrev:          strPtr(d.HashPrev),
		HashThis:          d.HashThis,
		CreatedAt:         d.CreatedAt,
	}
}

// ToDomainLedgerEntry converts an owa_ledger row to a domain LedgerEntry
func ToDomainLedgerEntry(m models.LedgerEntry) domain.LedgerEntry {
	return domain.LedgerEntry{
		EntryID:           m.ID,
		PeriodKey:         domain.PeriodKey{ABN: m.ABN, TaxType: domain.TaxType(m.TaxType), PeriodID: m.PeriodID},
		Seq:               m.Seq,
		AmountCents:       m.AmountCents,
		BalanceAfterCents: m.BalanceAfterCents,
		BankReceiptHash:   strVal(m.BankReceiptHash),
		HashPrev:          strVal(m.HashPrev),
		HashThis:          m.HashThis,
		CreatedAt:         m.CreatedAt.UTC(),
	}
}

// ToDomainLedgerEntrySlice converts owa_ledger rows to domain entries
func ToDomainLedgerEntrySlice(ms []models.LedgerEntry) []domain.LedgerEntry {
	ds := make([]domain.LedgerEntry, len(ms))
	for i, m := range ms {
		ds[i] = ToDomainLedgerEntry(m)
	}
	return ds
}

// ToModelAuditEvent converts a domain AuditEvent to an audit_log row
func ToModelAuditEvent(d domain.AuditEvent) models.AuditEvent {
	return models.AuditEvent{
		ID:        d.ID,
		Scope:     string(d.Scope),
		ABN:       strPtr(d.ABN),
		TaxType:   strPtr(string(d.TaxType)),
		PeriodID:  strPtr(d.PeriodID),
		EventKind: d.EventKind,
		Actor:     strPtr(d.Actor),
		Payload:   []byte(d.Payload),
		HashPrev:  strPtr(d.HashPrev),
		HashThis:  d.HashThis,
		CreatedAt: d.CreatedAt,
	}
}

// ToDomainAuditEvent converts an audit_log row to a domain AuditEvent
func ToDomainAuditEvent(m models.AuditEvent) domain.AuditEvent {
	return domain.AuditEvent{
		ID:        m.ID,
		Scope:     domain.AuditScope(m.Scope),
		ABN:       strVal(m.ABN),
		TaxType:   domain.TaxType(strVal(m.TaxType)),
		PeriodID:  strVal(m.PeriodID),
		EventKind: m.EventKind,
		Actor:     strVal(m.Actor),
		Payload:   json.RawMessage(m.Payload),
		HashPrev:  strVal(m.HashPrev),
		HashThis:  m.HashThis,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

// ToDomainAuditEventSlice converts audit_log rows to domain events
func ToDomainAuditEventSlice(ms []models.AuditEvent) []domain.AuditEvent {
	ds := make([]domain.AuditEvent, len(ms))
	for i, m := range ms {
		ds[i] = ToDomainAuditEvent(m)
	}
	return ds
}

// ToModelIdempotencyKey converts a domain IdempotencyRecord to an idempotency_keys row
func ToModelIdempotencyKey(d domain.IdempotencyRecord) (models.IdempotencyKey, error) {
	m := models.IdempotencyKey{
		ID:                  d.Key,
		Status:              string(d.Status),
		ResponseHash:        strPtr(d.ResponseHash),
		ResponseBody:        d.Response.Body,
		ResponseContentType: strPtr(d.Response.ContentType),
		FailureCause:        strPtr(d.FailureCause),
		TTLSecs:             int64(d.TTL / time.Second),
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
	if d.Response.HTTPStatus != 0 {
		status := int32(d.Response.HTTPStatus)
		m.HTTPStatus = &status
	}
	if len(d.Response.Headers) > 0 {
		headers, err := json.Marshal(d.Response.Headers)
		if err != nil {
			return models.IdempotencyKey{}, err
		}
		m.ResponseHeaders = headers
	}
	return m, nil
}

// ToDomainIdempotencyRecord converts an idempotency_keys row to a domain IdempotencyRecord
func ToDomainIdempotencyRecord(m models.IdempotencyKey) (domain.IdempotencyRecord, error) {
	d := domain.IdempotencyRecord{
		Key:          m.ID,
		Status:       domain.IdempotencyStatus(m.Status),
		ResponseHash: strVal(m.ResponseHash),
		Response: domain.CachedResponse{
			Body:        m.ResponseBody,
			ContentType: strVal(m.ResponseContentType),
		},
		FailureCause: strVal(m.FailureCause),
		TTL:          time.Duration(m.TTLSecs) * time.Second,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
	if m.HTTPStatus != nil {
		d.Response.HTTPStatus = int(*m.HTTPStatus)
	}
	if len(m.ResponseHeaders) > 0 {
		if err := json.Unmarshal(m.ResponseHeaders, &d.Response.Headers); err != nil {
			return domain.IdempotencyRecord{}, err
		}
	}
	return d, nil
}

// ToModelReconResult converts a domain ReconResult to a recon_results row
func ToModelReconResult(d domain.ReconResult) models.ReconResult {
	codes := d.ReasonCodes
	if codes == nil {
		codes = []string{}
	}
	return models.ReconResult{
		ID:             d.ID,
		ABN:            d.ABN,
		TaxType:        string(d.TaxType),
		PeriodID:       d.PeriodID,
		ExpectedCents:  d.ExpectedCents,
		ActualCents:    d.ActualCents,
		DeltaCents:     d.DeltaCents,
		ToleranceCents: d.ToleranceCents,
		ToleranceBPS:   d.ToleranceBPS,
		AnomalyPPM:     d.AnomalyScorePPM,
		CeilingPPM:     d.AnomalyCeilingPPM,
		Status:         string(d.Status),
		ReasonCodes:    codes,
		NextState:      string(d.NextState),
		CreatedAt:      d.CreatedAt,
	}
}

// ToDomainReconResult converts a recon_results row to a domain ReconResult
func ToDomainReconResult(m models.ReconResult) domain.ReconResult {
	codes := m.ReasonCodes
	if codes == nil {
		codes = []string{}
	}
	return domain.ReconResult{
		ID:                m.ID,
		PeriodKey:         domain.PeriodKey{ABN: m.ABN, TaxType: domain.TaxType(m.TaxType), PeriodID: m.PeriodID},
		ExpectedCents:     m.ExpectedCents,
		ActualCents:       m.ActualCents,
		DeltaCents:        m.DeltaCents,
		ToleranceCents:    m.ToleranceCents,
		ToleranceBPS:      m.ToleranceBPS,
		AnomalyScorePPM:   m.AnomalyPPM,
		AnomalyCeilingPPM: m.CeilingPPM,
		Status:            domain.ReconStatus(m.Status),
		ReasonCodes:       codes,
		NextState:         domain.GateState(m.NextState),
		CreatedAt:         m.CreatedAt.UTC(),
	}
}

// ToModelRPTToken converts a domain RPTRecord to an rpt_tokens row
func ToModelRPTToken(d domain.RPTRecord) models.RPTToken {
	return models.RPTToken{
		ID:            d.ID,
		ABN:           d.ABN,
		TaxType:       string(d.TaxType),
		PeriodID:      d.PeriodID,
		Token:         d.Token,
		Nonce:         d.Nonce,
		KeyID:         d.KeyID,
		AmountCents:   d.AmountCents,
		PayloadC14N:   d.PayloadC14N,
		PayloadSHA256: d.PayloadSHA256,
		Signature:     d.Signature,
		Status:        string(d.Status),
		IssuedBy:      strPtr(d.IssuedBy),
		IssuedAt:      d.IssuedAt,
		ExpiresAt:     d.ExpiresAt,
	}
}

// ToDomainRPTRecord converts an rpt_tokens row to a domain RPTRecord
func ToDomainRPTRecord(m models.RPTToken) domain.RPTRecord {
	return domain.RPTRecord{
		ID:            m.ID,
		PeriodKey:     domain.PeriodKey{ABN: m.ABN, TaxType: domain.TaxType(m.TaxType), PeriodID: m.PeriodID},
		Token:         m.Token,
		Nonce:         m.Nonce,
		KeyID:         m.KeyID,
		AmountCents:   m.AmountCents,
		PayloadC14N:   m.PayloadC14N,
		PayloadSHA256: m.PayloadSHA256,
		Signature:     m.Signature,
		Status:        domain.RPTStatus(m.Status),
		IssuedBy:      strVal(m.IssuedBy),
		IssuedAt:      m.IssuedAt.UTC(),
		ExpiresAt:     m.ExpiresAt.UTC(),
	}
}
