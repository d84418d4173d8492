package domain

import "time"

type RPTStatus string

const (
	RPTIssued   RPTStatus = "ISSUED"
	RPTConsumed RPTStatus = "CONSUMED"
)

// RPTRecord is an issued remittance proof token as persisted in rpt_tokens.
type RPTRecord struct {
	ID string `json:"id"`
	PeriodKey
	Token         string    `json:"token"`
	Nonce         string    `json:"nonce"`
	KeyID         string    `json:"kid"`
	AmountCents   int64     `json:"amount_cents"`
	PayloadC14N   []byte    `json:"-"`
	PayloadSHA256 string    `json:"payload_sha256"`
	Signature     string    `json:"signature_b64"`
	Status        RPTStatus `json:"status"`
	IssuedBy      string    `json:"issued_by,omitempty"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}
