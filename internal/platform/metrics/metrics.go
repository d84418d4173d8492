// Package metrics holds the prometheus collectors of the APGMS core. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "apgms"

// ResultOK labels successful operations.
const ResultOK = "ok"

type Metrics struct {
	gateTransitions     *prometheus.CounterVec
	ledgerAppends       *prometheus.CounterVec
	rptIssued           prometheus.Counter
	rptVerifications    *prometheus.CounterVec
	remits              *prometheus.CounterVec
	egressDuration      *prometheus.HistogramVec
	idempotencyOutcomes *prometheus.CounterVec
	lockWait            *prometheus.HistogramVec
	swept               *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

// New creates and registers the collectors on registerer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		gateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_transitions_total",
			Help:      "BAS gate transition attempts by target state and result.",
		}, []string{"target", "result"}),
		ledgerAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_appends_total",
			Help:      "OWA ledger appends by direction and result.",
		}, []string{"direction", "result"}),
		rptIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpt_issued_total",
			Help:      "Remittance proof tokens issued.",
		}),
		rptVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpt_verifications_total",
			Help:      "RPT verifications by result.",
		}, []string{"result"}),
		remits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remits_total",
			Help:      "Remit requests by result.",
		}, []string{"result"}),
		egressDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "egress_duration_seconds",
			Help:      "Bank egress call latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"result"}),
		idempotencyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idempotency_outcomes_total",
			Help:      "Idempotency acquire outcomes.",
		}, []string{"outcome"}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for advisory locks.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"lock"}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_rows_total",
			Help:      "Expired rows removed by the sweeper.",
		}, []string{"kind"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	registerer.MustRegister(
		m.gateTransitions,
		m.ledgerAppends,
		m.rptIssued,
		m.rptVerifications,
		m.remits,
		m.egressDuration,
		m.idempotencyOutcomes,
		m.lockWait,
		m.swept,
		m.httpDuration,
	)
	return m
}

// Result maps err to a metric label: "ok" or its taxonomy code.
func Result(err error) string {
	if err == nil {
		return ResultOK
	}
	return string(apperrors.CodeOf(err))
}

func (m *Metrics) GateTransition(target string, err error) {
	if m == nil {
		return
	}
	m.gateTransitions.WithLabelValues(target, Result(err)).Inc()
}

func (m *Metrics) LedgerAppend(amountCents int64, err error) {
	if m == nil {
		return
	}
	direction := "credit"
	if amountCents < 0 {
		direction = "debit"
	}
	m.ledgerAppends.WithLabelValues(direction, Result(err)).Inc()
}

func (m *Metrics) RPTIssued() {
	if m == nil {
		return
	}
	m.rptIssued.Inc()
}

func (m *Metrics) RPTVerified(err error) {
	if m == nil {
		return
	}
	m.rptVerifications.WithLabelValues(Result(err)).Inc()
}

func (m *Metrics) Remit(err error) {
	if m == nil {
		return
	}
	m.remits.WithLabelValues(Result(err)).Inc()
}

func (m *Metrics) Egress(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.egressDuration.WithLabelValues(Result(err)).Observe(d.Seconds())
}

func (m *Metrics) IdempotencyOutcome(outcome string) {
	if m == nil {
		return
	}
	m.idempotencyOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) LockWait(lock string, d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(lock).Observe(d.Seconds())
}

func (m *Metrics) Swept(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
