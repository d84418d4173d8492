package services

import (
	"github.com/apgms/apgms/internal/core/ports/gateways"
	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
	portssvc "github.com/apgms/apgms/internal/core/ports/services"
	"github.com/apgms/apgms/internal/platform/clock"
	"github.com/apgms/apgms/internal/platform/config"
	"github.com/apgms/apgms/internal/platform/metrics"
	"github.com/apgms/apgms/internal/rpt"
)

// ContainerOption customises NewServiceContainer.
type ContainerOption func(*containerOptions)

type containerOptions struct {
	clock   clock.Clock
	metrics *metrics.Metrics
}

// WithClock replaces the system clock.
func WithClock(c clock.Clock) ContainerOption {
	return func(o *containerOptions) {
		o.clock = c
	}
}

// WithMetrics records service metrics on m.
func WithMetrics(m *metrics.Metrics) ContainerOption {
	return func(o *containerOptions) {
		o.metrics = m
	}
}

// NewServiceContainer creates a new service container with properly initialized dependencies
func NewServiceContainer(cfg *config.Config, repos portsrepo.RepositoryProvider, keyring *rpt.Keyring, egress gateways.EgressProvider, opts ...ContainerOption) *portssvc.ServiceContainer {
	o := &containerOptions{}
	for _, opt := range opts {
		opt(o)
	}
	base := NewBaseService(o.clock, o.metrics)

	// Gate and ledger are shared by the services that compose their
	// transactional steps.
	gate := NewGateService(base, repos, cfg.GateOverrideActors)
	ledger := NewLedgerService(base, repos)
	rptSvc := NewRPTService(base, repos, keyring, cfg.RPTTTL)

	return &portssvc.ServiceContainer{
		Gate:        gate,
		Ledger:      ledger,
		Recon:       NewReconService(base, repos, gate, rptSvc),
		RPT:         rptSvc,
		Idempotency: NewIdempotencyService(base, repos.Idempotency, repos.JTI),
		Remit:       NewRemitService(base, repos, rptSvc, gate, ledger, egress),
		Audit:       NewAuditService(base, repos),
	}
}

// Helper to check interface implementations at compile time
var (
	_ portssvc.GateSvcFacade   = (*gateService)(nil)
	_ portssvc.LedgerSvcFacade = (*ledgerService)(nil)
	_ portssvc.ReconSvcFacade  = (*reconService)(nil)
	_ portssvc.RPTSvcFacade    = (*rptService)(nil)
	_ portssvc.IdempotencySvc  = (*idempotencyService)(nil)
	_ portssvc.RemitSvc        = (*remitService)(nil)
	_ portssvc.AuditSvc        = (*auditService)(nil)
)
