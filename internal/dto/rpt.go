package dto

import (
	"encoding/base64"
	"time"

	"github.com/apgms/apgms/internal/core/domain"
)

// RPTIssueRequest issues a token for a period in RPT_ISSUED. AmountCents
// defaults to the period's final liability.
type RPTIssueRequest struct {
	PeriodRef
	RemittanceInput
	AmountCents int64  `json:"amount_cents" binding:"gte=0"`
	Actor       string `json:"actor" binding:"max=128"`
}

// RPTIssueResponse carries the token and its detached verification material.
type RPTIssueResponse struct {
	Token         string    `json:"rpt"`
	KeyID         string    `json:"kid"`
	Nonce         string    `json:"nonce"`
	AmountCents   int64     `json:"amount_cents"`
	PayloadC14N   string    `json:"payload_c14n"`
	PayloadSHA256 string    `json:"payload_sha256"`
	SignatureB64  string    `json:"signature_b64"`
	PubkeyB64     string    `json:"pubkey_b64"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// ToRPTIssueResponse converts a stored token to its response body
func ToRPTIssueResponse(r *domain.RPTRecord, pub []byte) RPTIssueResponse {
	return RPTIssueResponse{
		Token:         r.Token,
		KeyID:         r.KeyID,
		Nonce:         r.Nonce,
		AmountCents:   r.AmountCents,
		PayloadC14N:   string(r.PayloadC14N),
		PayloadSHA256: r.PayloadSHA256,
		SignatureB64:  r.Signature,
		PubkeyB64:     base64.StdEncoding.EncodeToString(pub),
		ExpiresAt:     r.ExpiresAt,
	}
}

// RPTVerifyRequest checks a detached signature over payload_c14n.
type RPTVerifyRequest struct {
	KeyID        string `json:"kid"`
	PayloadC14N  string `json:"payload_c14n" binding:"required"`
	SignatureB64 string `json:"signature_b64" binding:"required"`
	PubkeyB64    string `json:"pubkey_b64"`
}

// RPTVerifyResponse reports a successful detached verification.
type RPTVerifyResponse struct {
	OK            bool   `json:"ok"`
	PayloadSHA256 string `json:"payload_sha256"`
}
