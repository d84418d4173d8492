package egress_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/apgms/apgms/internal/adapters/egress"
	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/canonical"
	"github.com/apgms/apgms/internal/core/domain"
	"github.com/apgms/apgms/internal/core/ports/gateways"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instruction() gateways.Instruction {
	return gateways.Instruction{
		PeriodKey:      domain.PeriodKey{ABN: "12345678901", TaxType: domain.TaxTypeGST, PeriodID: "2025-09"},
		AmountCents:    123456,
		RailID:         "EFT",
		DestinationID:  "ATO-PRN-1",
		Reference:      "REF-1",
		IdempotencyKey: "idem-1",
		Nonce:          "nonce-1",
	}
}

func TestFormatDollars(t *testing.T) {
	assert.Equal(t, "1234.56", egress.FormatDollars(123456))
	assert.Equal(t, "0.05", egress.FormatDollars(5))
	assert.Equal(t, "-1.00", egress.FormatDollars(-100))
}

func TestSandbox_IsDeterministic(t *testing.T) {
	sb := egress.NewSandbox()
	a, err := sb.Remit(context.Background(), instruction())
	require.NoError(t, err)
	b, err := sb.Remit(context.Background(), instruction())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Regexp(t, `^SBX-[0-9A-F]{16}$`, a.BankReference)
	assert.Len(t, a.ReceiptHash, 64)
	assert.Equal(t, 2, sb.Calls())

	other := instruction()
	other.Nonce = "nonce-2"
	c, err := sb.Remit(context.Background(), other)
	require.NoError(t, err)
	assert.NotEqual(t, a.ReceiptHash, c.ReceiptHash)
}

func TestKillSwitch(t *testing.T) {
	sb := egress.NewSandbox()
	ks := egress.NewKillSwitch(sb, true)

	_, err := ks.Remit(context.Background(), instruction())
	assert.True(t, apperrors.Is(err, apperrors.CodeKillSwitch))
	assert.Equal(t, 0, sb.Calls())

	ks.Release()
	_, err = ks.Remit(context.Background(), instruction())
	require.NoError(t, err)
	assert.Equal(t, 1, sb.Calls())
}

func TestHTTPRail_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/remittances", r.URL.Path)
		assert.Equal(t, "idem-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "accepted", "bank_reference": "BR-77"}`))
	}))
	defer srv.Close()

	rail := egress.NewHTTPRail(srv.URL+"/", time.Second)
	receipt, err := rail.Remit(context.Background(), instruction())
	require.NoError(t, err)

	assert.Equal(t, "1234.56", got["amount"])
	assert.Equal(t, "BR-77", receipt.BankReference)
	want := canonical.SHA256Hex([]byte(`{"bank_reference":"BR-77","status":"accepted"}`))
	assert.Equal(t, want, receipt.ReceiptHash)
}

func TestHTTPRail_Failures(t *testing.T) {
	t.Run("upstream status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()
		_, err := egress.NewHTTPRail(srv.URL, time.Second).Remit(context.Background(), instruction())
		assert.True(t, apperrors.Is(err, apperrors.CodeUpstreamError))
	})

	t.Run("missing reference", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}))
		defer srv.Close()
		_, err := egress.NewHTTPRail(srv.URL, time.Second).Remit(context.Background(), instruction())
		assert.True(t, apperrors.Is(err, apperrors.CodeUpstreamError))
	})

	t.Run("timeout", func(t *testing.T) {
		done := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-done:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(done)
		_, err := egress.NewHTTPRail(srv.URL, 50*time.Millisecond).Remit(context.Background(), instruction())
		assert.True(t, apperrors.Is(err, apperrors.CodeTimeout))
	})
}
