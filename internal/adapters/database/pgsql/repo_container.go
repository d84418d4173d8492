package pgsql

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/core/domain"
	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store owns the pool and hands out repositories bound to it or to a
// transaction.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ portsrepo.Transactor  = (*Store)(nil)
	_ portsrepo.RemitLocker = (*Store)(nil)
)

func NewRepositoryProvider(pool *pgxpool.Pool) portsrepo.RepositoryProvider {
	s := &Store{pool: pool}
	return portsrepo.RepositoryProvider{
		Transactor:  s,
		Reader:      bind(pool, true),
		Idempotency: newPgxIdempotencyRepository(pool),
		JTI:         newPgxJTIRepository(pool),
		RemitLocker: s,
		Close:       pool.Close,
	}
}

func bind(db querier, retryReads bool) portsrepo.Repositories {
	base := BaseRepository{db: db, retryReads: retryReads}
	return portsrepo.Repositories{
		Periods: &PgxPeriodRepository{BaseRepository: base},
		Ledger:  &PgxLedgerRepository{BaseRepository: base},
		Audit:   &PgxAuditRepository{BaseRepository: base},
		Recon:   &PgxReconRepository{BaseRepository: base},
		RPT:     &PgxRPTRepository{BaseRepository: base},
		Locks:   &pgxLocks{BaseRepository: base},
	}
}

// WithinTx runs fn in a read committed transaction. The advisory locks taken
// through repos.Locks serialise writers of one period or audit scope.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos portsrepo.Repositories) error) error {
	return runTx(ctx, s.pool, fn)
}

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

func runTx(ctx context.Context, db beginner, fn func(ctx context.Context, repos portsrepo.Repositories) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return mapError(ctx, "begin transaction", err)
	}
	// Rollback is a no-op once the transaction has committed.
	defer func() {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Default().Warn("Failed to roll back transaction", slog.String("error", rbErr.Error()))
		}
	}()

	if err := fn(ctx, bind(tx, false)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(ctx, "commit transaction", err)
	}
	return nil
}

// AcquireRemitLock holds a session advisory lock on a dedicated connection
// for the whole remittance, across the egress call. The remittance reads and
// commits through the returned session on that same connection.
func (s *Store) AcquireRemitLock(ctx context.Context, key domain.PeriodKey) (portsrepo.RemitSession, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, mapError(ctx, "acquire connection", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1, hashtext($2))`, lockClassRemit, key.String()); err != nil {
		conn.Release()
		return nil, mapError(ctx, "remit lock", err)
	}
	return &remitSession{conn: conn, key: key, repos: bind(conn, false)}, nil
}

type remitSession struct {
	conn  *pgxpool.Conn
	key   domain.PeriodKey
	repos portsrepo.Repositories
	once  sync.Once
	err   error
}

var _ portsrepo.RemitSession = (*remitSession)(nil)

func (r *remitSession) Repos() portsrepo.Repositories {
	return r.repos
}

func (r *remitSession) WithinTx(ctx context.Context, fn func(ctx context.Context, repos portsrepo.Repositories) error) error {
	return runTx(ctx, r.conn, fn)
}

func (r *remitSession) Release(ctx context.Context) error {
	r.once.Do(func() { r.err = r.unlock(ctx) })
	return r.err
}

func (r *remitSession) unlock(ctx context.Context) error {
	defer r.conn.Release()
	var released bool
	err := r.conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1, hashtext($2))`, lockClassRemit, r.key.String()).Scan(&released)
	if err != nil || !released {
		// A connection still holding the lock must not go back to the pool.
		_ = r.conn.Conn().Close(ctx)
		if err == nil {
			return apperrors.Newf(apperrors.CodeInternal, "remit lock for %s was not held", r.key)
		}
		return mapError(ctx, "remit unlock", err)
	}
	return nil
}

type pgxLocks struct {
	BaseRepository
}

func (l *pgxLocks) LockPeriod(ctx context.Context, key domain.PeriodKey) error {
	return advisoryXactLock(ctx, l.db, lockClassPeriod, key.String())
}

func (l *pgxLocks) LockScope(ctx context.Context, scope domain.AuditScope) error {
	return advisoryXactLock(ctx, l.db, lockClassAudit, string(scope))
}
