package services

import (
	"context"
	"time"

	"github.com/apgms/apgms/internal/core/domain"
	"github.com/apgms/apgms/internal/dto"
	"github.com/apgms/apgms/internal/rpt"
)

// ServiceContainer holds instances of all the application services.
// Handlers depend on it rather than on concrete implementations.
type ServiceContainer struct {
	Gate        GateSvcFacade
	Ledger      LedgerSvcFacade
	Recon       ReconSvcFacade
	RPT         RPTSvcFacade
	Idempotency IdempotencySvc
	Remit       RemitSvc
	Audit       AuditSvc
}

// GateReaderSvc defines read operations on gate rows
type GateReaderSvc interface {
	// GetPeriod returns NOT_FOUND when the period was never opened.
	GetPeriod(ctx context.Context, key domain.PeriodKey) (*domain.Period, error)
}

// GateWriterSvc defines gate transitions
type GateWriterSvc interface {
	// Transition moves the period to req.TargetState under the period lock.
	Transition(ctx context.Context, req dto.GateTransitionRequest) (*domain.TransitionResult, error)
}

// GateSvcFacade combines gate reads and transitions
type GateSvcFacade interface {
	GateReaderSvc
	GateWriterSvc
}

// LedgerReaderSvc defines read operations on the OWA ledger
type LedgerReaderSvc interface {
	Snapshot(ctx context.Context, key domain.PeriodKey) (*domain.LedgerSnapshot, error)
	Entries(ctx context.Context, key domain.PeriodKey) ([]domain.LedgerEntry, error)
	CreditsForPeriod(ctx context.Context, key domain.PeriodKey) (int64, error)

	// Verify recomputes the period's hash chain.
	Verify(ctx context.Context, key domain.PeriodKey) (*domain.ChainReport, error)
}

// LedgerWriterSvc defines ledger appends
type LedgerWriterSvc interface {
	Append(ctx context.Context, req dto.LedgerAppendRequest) (*domain.LedgerEntry, error)
}

// LedgerSvcFacade combines ledger reads and appends
type LedgerSvcFacade interface {
	LedgerReaderSvc
	LedgerWriterSvc
}

// ReconSvcFacade runs reconciliations and reports their latest outcome.
type ReconSvcFacade interface {
	Run(ctx context.Context, req dto.ReconRunRequest) (*dto.ReconRunResponse, error)
	Status(ctx context.Context, key domain.PeriodKey) (*domain.ReconResult, error)
}

// RPTSvcFacade issues and verifies remittance proof tokens.
type RPTSvcFacade interface {
	Issue(ctx context.Context, req dto.RPTIssueRequest) (*dto.RPTIssueResponse, error)

	// Verify checks the token and consumes its nonce.
	Verify(ctx context.Context, token string) (*rpt.Token, error)

	// Release forgets a consumed nonce.
	Release(ctx context.Context, nonce string) error

	VerifyDetached(ctx context.Context, req dto.RPTVerifyRequest) (*dto.RPTVerifyResponse, error)
}

// IdempotencySvc is the keyed outcome registry for mutating endpoints.
type IdempotencySvc interface {
	Acquire(ctx context.Context, key string, ttl time.Duration, sharePending bool) (*domain.AcquireResult, error)
	MarkApplied(ctx context.Context, key string, response domain.CachedResponse) error
	MarkFailed(ctx context.Context, key string, cause string, response *domain.CachedResponse) error

	// Sweep purges expired records and expired jti rows.
	Sweep(ctx context.Context) (idempotency int64, jti int64, err error)
}

// RemitSvc performs the verified egress of an issued RPT.
type RemitSvc interface {
	Remit(ctx context.Context, req dto.RemitRequest) (*dto.RemitResponse, error)
}

// AuditSvc exposes the audit chains.
type AuditSvc interface {
	// Bundle returns every event of a period in ascending order. An empty abn
	// matches every entity.
	Bundle(ctx context.Context, abn, periodID string) ([]domain.AuditEvent, error)
	VerifyScope(ctx context.Context, scope domain.AuditScope) (*domain.ChainReport, error)
}
