// Package rpt issues and verifies Remittance Proof Tokens: Ed25519 signed CBOR
// envelopes binding a remittance to a period's ledger evidence.
package rpt

import (
	"fmt"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/canonical"
	"github.com/fxamacker/cbor/v2"
)

// ClaimKeys is the fixed wire order of the claim set.
var ClaimKeys = []string{
	"entity_id",
	"period_id",
	"tax_type",
	"amount_cents",
	"merkle_root",
	"running_balance_hash",
	"anomaly_vector",
	"thresholds",
	"rail_id",
	"destination_id",
	"expiry_ts",
	"reference",
	"nonce",
}

// Claims is the RPT claim set. Money is integer cents and anomaly values are
// integer parts per million.
type Claims struct {
	EntityID           string           `json:"entity_id"`
	PeriodID           string           `json:"period_id"`
	TaxType            string           `json:"tax_type"`
	AmountCents        int64            `json:"amount_cents"`
	MerkleRoot         string           `json:"merkle_root"`
	RunningBalanceHash string           `json:"running_balance_hash"`
	AnomalyVector      map[string]int64 `json:"anomaly_vector"`
	Thresholds         map[string]int64 `json:"thresholds"`
	RailID             string           `json:"rail_id"`
	DestinationID      string           `json:"destination_id"`
	ExpiryTS           int64            `json:"expiry_ts"`
	Reference          string           `json:"reference"`
	Nonce              string           `json:"nonce"`
}

func (c *Claims) fields() []any {
	return []any{
		&c.EntityID,
		&c.PeriodID,
		&c.TaxType,
		&c.AmountCents,
		&c.MerkleRoot,
		&c.RunningBalanceHash,
		&c.AnomalyVector,
		&c.Thresholds,
		&c.RailID,
		&c.DestinationID,
		&c.ExpiryTS,
		&c.Reference,
		&c.Nonce,
	}
}

func malformed(format string, args ...any) *apperrors.AppError {
	return apperrors.Newf(apperrors.CodeRPTMalformed, format, args...)
}

// Validate requires every claim to be present and well typed.
func (c Claims) Validate() error {
	required := map[string]string{
		"entity_id":            c.EntityID,
		"period_id":            c.PeriodID,
		"tax_type":             c.TaxType,
		"merkle_root":          c.MerkleRoot,
		"running_balance_hash": c.RunningBalanceHash,
		"rail_id":              c.RailID,
		"destination_id":       c.DestinationID,
		"reference":            c.Reference,
		"nonce":                c.Nonce,
	}
	for _, key := range ClaimKeys {
		if v, ok := required[key]; ok && v == "" {
			return malformed("claim %s is required", key)
		}
	}
	if c.AmountCents <= 0 {
		return malformed("claim amount_cents must be a positive integer")
	}
	if c.ExpiryTS <= 0 {
		return malformed("claim expiry_ts must be a positive unix timestamp")
	}
	if c.AnomalyVector == nil {
		return malformed("claim anomaly_vector is required")
	}
	if c.Thresholds == nil {
		return malformed("claim thresholds is required")
	}
	return nil
}

// Map returns the claims keyed by claim name.
func (c Claims) Map() map[string]any {
	values := c.fields()
	out := make(map[string]any, len(ClaimKeys))
	for i, key := range ClaimKeys {
		switch v := values[i].(type) {
		case *string:
			out[key] = *v
		case *int64:
			out[key] = *v
		case *map[string]int64:
			out[key] = *v
		}
	}
	return out
}

// Canonical returns the canonical JSON form of the claims.
func (c Claims) Canonical() ([]byte, error) {
	return canonical.Marshal(c.Map())
}

type claimPair struct {
	_     struct{} `cbor:",toarray"`
	Key   string
	Value cbor.RawMessage
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("rpt: cbor encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("rpt: cbor decoder: %v", err))
	}
}

// EncodePayload renders the claims as a CBOR array of [key, value] pairs in
// ClaimKeys order.
func EncodePayload(c Claims) ([]byte, error) {
	values := c.fields()
	pairs := make([]claimPair, len(ClaimKeys))
	for i, key := range ClaimKeys {
		raw, err := encMode.Marshal(values[i])
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeRPTMalformed, "claim "+key+" could not be encoded", err)
		}
		pairs[i] = claimPair{Key: key, Value: raw}
	}
	b, err := encMode.Marshal(pairs)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRPTMalformed, "claims could not be encoded", err)
	}
	return b, nil
}

// DecodePayload parses and validates a CBOR claims payload.
func DecodePayload(b []byte) (Claims, error) {
	var pairs []claimPair
	if err := decMode.Unmarshal(b, &pairs); err != nil {
		return Claims{}, apperrors.Wrap(apperrors.CodeRPTMalformed, "claims payload is not a CBOR pair list", err)
	}
	if len(pairs) != len(ClaimKeys) {
		return Claims{}, malformed("claims payload has %d claims, want %d", len(pairs), len(ClaimKeys))
	}
	var c Claims
	targets := c.fields()
	for i, pair := range pairs {
		if pair.Key != ClaimKeys[i] {
			return Claims{}, malformed("claim %d is %q, want %q", i, pair.Key, ClaimKeys[i])
		}
		if err := decMode.Unmarshal(pair.Value, targets[i]); err != nil {
			return Claims{}, apperrors.Wrap(apperrors.CodeRPTMalformed, "claim "+pair.Key+" has the wrong type", err)
		}
	}
	if err := c.Validate(); err != nil {
		return Claims{}, err
	}
	return c, nil
}
