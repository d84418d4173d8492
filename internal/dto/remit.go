package dto

// RemitRequest presents an RPT for payment. The token's claims identify the
// period; ABN and TaxType, when given, must agree with them.
type RemitRequest struct {
	PeriodID string `json:"period_id" binding:"required,max=64"`
	RPT      string `json:"rpt" binding:"required"`
	Actor    string `json:"actor" binding:"required,max=128"`
	ABN      string `json:"abn" binding:"omitempty,abn"`
	TaxType  string `json:"tax_type" binding:"omitempty,taxtype"`

	// IdempotencyKey is taken from the Idempotency-Key header.
	IdempotencyKey string `json:"-"`
}

// RemitResponse is returned once the debit and REMITTED transition commit.
type RemitResponse struct {
	OK            bool   `json:"ok"`
	BankReference string `json:"bank_reference"`
	ReceiptHash   string `json:"receipt_hash"`
	Status        string `json:"status"`
	Hash          string `json:"hash"`
}
