package models

import "time"

// Period is the periods row. Nullable columns are pointers.
type Period struct {
	ABN                 string
	TaxType             string
	PeriodID            string
	State               string
	ReasonCode          *string
	AccruedCents        int64
	CreditedCents       int64
	FinalLiabilityCents int64
	MerkleRoot          *string
	RunningBalanceHash  *string
	HashPrev            *string
	HashThis            string
	RPTIssuedBy         *string
	LastActor           *string
	UpdatedAt           time.Time
}

// LedgerEntry is an owa_ledger row.
type LedgerEntry struct {
	ID                string
	ABN               string
	TaxType           string
	PeriodID          string
	Seq               int64
	AmountCents       int64
	BalanceAfterCents int64
	BankReceiptHash   *string
	HashPrev          *string
	HashThis          string
	CreatedAt         time.Time
}

// AuditEvent is an audit_log row.
type AuditEvent struct {
	ID        int64
	Scope     string
	ABN       *string
	TaxType   *string
	PeriodID  *string
	EventKind string
	Actor     *string
	Payload   []byte
	HashPrev  *string
	HashThis  string
	CreatedAt time.Time
}

// IdempotencyKey is an idempotency_keys row.
type IdempotencyKey struct {
	ID                  string
	Status              string
	ResponseHash        *string
	ResponseBody        []byte
	ResponseHeaders     []byte
	HTTPStatus          *int32
	ResponseContentType *string
	FailureCause        *string
	TTLSecs             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ReconResult is a recon_results row.
type ReconResult struct {
	ID             string
	ABN            string
	TaxType        string
	PeriodID       string
	ExpectedCents  int64
	ActualCents    int64
	DeltaCents     int64
	ToleranceCents int64
	ToleranceBPS   int64
	AnomalyPPM     int64
	CeilingPPM     int64
	Status         string
	ReasonCodes    []string
	NextState      string
	CreatedAt      time.Time
}

// RPTToken is an rpt_tokens row.
type RPTToken struct {
	ID            string
	ABN           string
	TaxType       string
	PeriodID      string
	Token         string
	Nonce         string
	KeyID         string
	AmountCents   int64
	PayloadC14N   []byte
	PayloadSHA256 string
	Signature     string
	Status        string
	IssuedBy      *string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}
