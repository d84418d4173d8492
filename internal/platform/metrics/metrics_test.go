package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/platform/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", metrics.Result(nil))
	assert.Equal(t, "LEDGER_UNDERFLOW", metrics.Result(apperrors.New(apperrors.CodeLedgerUnderflow, "")))
	assert.Equal(t, "INTERNAL", metrics.Result(errors.New("boom")))
}

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.GateTransition("OPEN", nil)
	m.GateTransition("REMITTED", apperrors.New(apperrors.CodeSeparationOfDuties, ""))
	m.LedgerAppend(-5, nil)
	m.RPTIssued()
	m.Swept("jti", 0)
	m.HTTPRequest("POST", "/egress/remit", 200, time.Millisecond)

	count, err := testutil.GatherAndCount(reg, "apgms_gate_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(reg, "apgms_swept_rows_total")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = testutil.GatherAndCount(reg, "apgms_rpt_issued_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.GateTransition("OPEN", nil)
		m.Remit(errors.New("x"))
		m.LockWait("period", time.Second)
	})
}
