package repositories

import (
	"context"
	"time"

	"github.com/apgms/apgms/internal/core/domain"
)

// PeriodRepository reads and writes gate rows.
type PeriodRepository interface {
	// FindPeriod returns apperrors.ErrNotFound when the period was never opened.
	FindPeriod(ctx context.Context, key domain.PeriodKey) (*domain.Period, error)

	// SavePeriod inserts or replaces the period row.
	SavePeriod(ctx context.Context, period domain.Period) error
}

// LedgerRepository is the append-only OWA ledger.
type LedgerRepository interface {
	// LastEntry returns the tail entry, or nil when the ledger is empty.
	LastEntry(ctx context.Context, key domain.PeriodKey) (*domain.LedgerEntry, error)

	// FindByReceipt returns apperrors.ErrNotFound when no entry carries the receipt.
	FindByReceipt(ctx context.Context, key domain.PeriodKey, bankReceiptHash string) (*domain.LedgerEntry, error)

	// InsertEntry returns apperrors.ErrDuplicate on a seq or receipt clash.
	InsertEntry(ctx context.Context, entry domain.LedgerEntry) error

	ListEntries(ctx context.Context, key domain.PeriodKey) ([]domain.LedgerEntry, error)

	// SumCredits is the sum of positive entries.
	SumCredits(ctx context.Context, key domain.PeriodKey) (int64, error)
}

// AuditRepository stores the per scope hash chains.
type AuditRepository interface {
	// Tail returns the scope's last hash_this, or "" for an empty scope.
	Tail(ctx context.Context, scope domain.AuditScope) (string, error)

	// InsertEvent persists the event and sets its ID.
	InsertEvent(ctx context.Context, event *domain.AuditEvent) error

	ListByPeriod(ctx context.Context, abn, periodID string) ([]domain.AuditEvent, error)
	ListByScope(ctx context.Context, scope domain.AuditScope) ([]domain.AuditEvent, error)
}

// ReconRepository stores reconciliation outcomes.
type ReconRepository interface {
	InsertResult(ctx context.Context, result domain.ReconResult) error

	// LatestResult returns apperrors.ErrNotFound when the period was never reconciled.
	LatestResult(ctx context.Context, key domain.PeriodKey) (*domain.ReconResult, error)
}

// RPTRepository stores issued tokens.
type RPTRepository interface {
	InsertToken(ctx context.Context, record domain.RPTRecord) error

	// LatestToken returns apperrors.ErrNotFound when no token was issued.
	LatestToken(ctx context.Context, key domain.PeriodKey) (*domain.RPTRecord, error)

	// UpdateTokenStatus returns apperrors.ErrNotFound for an unknown nonce.
	UpdateTokenStatus(ctx context.Context, nonce string, status domain.RPTStatus) error
}

// LockRepository takes transaction scoped locks. Both block until granted or
// the context is done.
type LockRepository interface {
	LockPeriod(ctx context.Context, key domain.PeriodKey) error
	LockScope(ctx context.Context, scope domain.AuditScope) error
}

// Repositories is one consistent view of the store, either inside a
// transaction or bound to the pool.
type Repositories struct {
	Periods PeriodRepository
	Ledger  LedgerRepository
	Audit   AuditRepository
	Recon   ReconRepository
	RPT     RPTRepository
	Locks   LockRepository
}

// Transactor runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// JTIRegistry is the RPT replay registry.
type JTIRegistry interface {
	// Consume atomically inserts nonce and reports false when it already exists.
	Consume(ctx context.Context, nonce string, expiresAt time.Time) (bool, error)

	// Release forgets nonce so the token may be presented again.
	Release(ctx context.Context, nonce string) error

	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// IdempotencyRepository persists keyed request outcomes.
type IdempotencyRepository interface {
	// InsertPending is a unique insert; false means the key already exists.
	InsertPending(ctx context.Context, record domain.IdempotencyRecord) (bool, error)

	// Find returns apperrors.ErrNotFound for an unknown key.
	Find(ctx context.Context, key string) (*domain.IdempotencyRecord, error)

	MarkApplied(ctx context.Context, key string, response domain.CachedResponse, responseHash string, now time.Time) error

	// MarkFailed records cause and, when response is non-nil, the failure body to replay.
	MarkFailed(ctx context.Context, key string, cause string, response *domain.CachedResponse, now time.Time) error

	// ReclaimExpired deletes key when its TTL has elapsed at now.
	ReclaimExpired(ctx context.Context, key string, now time.Time) (bool, error)

	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// RemitSession is a held remit lock. Repos and WithinTx run on the
// connection that holds the lock, so a remittance never waits on the pool
// while holding it.
type RemitSession interface {
	Transactor
	Repos() Repositories
	// Release drops the lock. It is safe to call more than once.
	Release(ctx context.Context) error
}

// RemitLocker serialises remittances of one period across the egress call.
type RemitLocker interface {
	AcquireRemitLock(ctx context.Context, key domain.PeriodKey) (RemitSession, error)
}

// RepositoryProvider holds every persistence port needed by the services.
type RepositoryProvider struct {
	Transactor  Transactor
	Reader      Repositories
	Idempotency IdempotencyRepository
	JTI         JTIRegistry
	RemitLocker RemitLocker
	// Close releases the underlying connections.
	Close func()
}
