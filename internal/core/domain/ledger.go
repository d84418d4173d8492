package domain

import "time"

// LedgerEntry is an immutable OWA ledger row.
type LedgerEntry struct {
	EntryID string `json:"entry_id"`
	PeriodKey
	Seq               int64     `json:"seq"`
	AmountCents       int64     `json:"amount_cents"`
	BalanceAfterCents int64     `json:"balance_after_cents"`
	BankReceiptHash   string    `json:"bank_receipt_hash,omitempty"`
	HashPrev          string    `json:"hash_prev,omitempty"`
	HashThis          string    `json:"hash_this"`
	CreatedAt         time.Time `json:"created_at"`
}

// HashPayload is the entry without its hash fields.
func (e LedgerEntry) HashPayload() map[string]any {
	return map[string]any{
		"entry_id":            e.EntryID,
		"abn":                 e.ABN,
		"tax_type":            string(e.TaxType),
		"period_id":           e.PeriodID,
		"seq":                 e.Seq,
		"amount_cents":        e.AmountCents,
		"balance_after_cents": e.BalanceAfterCents,
		"bank_receipt_hash":   nullable(e.BankReceiptHash),
		"created_at":          FormatTimestamp(e.CreatedAt),
	}
}

// LedgerSnapshot summarises the tail of a period ledger.
type LedgerSnapshot struct {
	PeriodKey
	BalanceCents int64  `json:"balance_cents"`
	HashTail     string `json:"hash_tail"`
	Seq          int64  `json:"seq"`
}

// ChainReport is the result of recomputing a hash chain.
type ChainReport struct {
	Valid   bool   `json:"valid"`
	Length  int    `json:"length"`
	Tail    string `json:"tail,omitempty"`
	BrokeAt *int   `json:"broke_at,omitempty"`
	Reason  string `json:"reason,omitempty"`
}
