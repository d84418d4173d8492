package domain

import (
	"regexp"
	"time"

	"github.com/apgms/apgms/internal/apperrors"
)

var abnPattern = regexp.MustCompile(`^[0-9]{11}$`)

// ValidABN reports whether s is an 11 digit ABN.
func ValidABN(s string) bool {
	return abnPattern.MatchString(s)
}

// TaxType identifies the obligation a period accrues.
type TaxType string

const (
	TaxTypePAYGW      TaxType = "PAYGW"
	TaxTypeGST        TaxType = "GST"
	TaxTypeFBT        TaxType = "FBT"
	TaxTypeSG         TaxType = "SG"
	TaxTypePayrollTax TaxType = "PAYROLL_TAX"
)

// Valid reports whether t is a known tax type.
func (t TaxType) Valid() bool {
	switch t {
	case TaxTypePAYGW, TaxTypeGST, TaxTypeFBT, TaxTypeSG, TaxTypePayrollTax:
		return true
	}
	return false
}

// PeriodKey identifies a period: (abn, tax_type, period_id).
type PeriodKey struct {
	ABN      string  `json:"abn"`
	TaxType  TaxType `json:"tax_type"`
	PeriodID string  `json:"period_id"`
}

// Validate checks the key fields.
func (k PeriodKey) Validate() error {
	if !ValidABN(k.ABN) {
		return apperrors.Newf(apperrors.CodeInvalidPayload, "abn %q must be 11 digits", k.ABN)
	}
	if !k.TaxType.Valid() {
		return apperrors.Newf(apperrors.CodeInvalidPayload, "unknown tax_type %q", k.TaxType)
	}
	if k.PeriodID == "" {
		return apperrors.New(apperrors.CodeInvalidPayload, "period_id is required")
	}
	return nil
}

// String is the lock and cache identity of the period.
func (k PeriodKey) String() string {
	return k.ABN + "|" + string(k.TaxType) + "|" + k.PeriodID
}

// FormatTimestamp renders t the way it is embedded in hashed payloads. Postgres
// stores microseconds, so finer precision is dropped.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano)
}

// nullable maps an empty string to nil for canonical payloads.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
