// Package pgsql implements the persistence ports on PostgreSQL through pgx.
package pgsql

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres SQLSTATE codes the repositories react to.
const (
	pgUniqueViolation = "23505"
	pgQueryCanceled   = "57014"
	pgLockTimeout     = "55P03"
	pgDeadlock        = "40P01"

	pgAdminShutdown          = "57P01"
	pgTooManyConnections     = "53300"
	pgSerializationFailure   = "40001"
	pgConnectionExceptionCls = "08"
)

// Advisory lock classes. Each lock key is (class, hashtext(name)).
const (
	lockClassPeriod int32 = 1
	lockClassRemit  int32 = 2
	lockClassAudit  int32 = 3
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ querier = (*pgxpool.Pool)(nil)
	_ querier = (*pgxpool.Conn)(nil)
	_ querier = (pgx.Tx)(nil)
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db querier
	// retryReads is set for repositories bound to the pool. Inside a
	// transaction a failed statement aborts the transaction, so nothing is
	// retried there.
	retryReads bool
}

// readAttempts bounds idempotent reads: one try plus a single retry.
const readAttempts = 2

// read runs an idempotent query, retrying once on a transient failure. fn
// returns the raw driver error; the result is mapped through mapError, so an
// exhausted retry surfaces as UPSTREAM_ERROR.
func (r BaseRepository) read(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= readAttempts; attempt++ {
		err = fn()
		if err == nil || !r.retryReads || !isTransient(err) || ctx.Err() != nil {
			break
		}
	}
	return mapError(ctx, op, err)
}

// isTransient reports whether err is a connection level failure that a fresh
// attempt on another pooled connection may not repeat.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgAdminShutdown, pgTooManyConnections, pgSerializationFailure:
			return true
		}
		return strings.HasPrefix(pgErr.Code, pgConnectionExceptionCls)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	return pgconn.SafeToRetry(err) || errors.Is(err, io.ErrUnexpectedEOF)
}

// mapError converts driver errors into the sentinels and codes the services
// understand. op names the failed operation.
func mapError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, apperrors.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, apperrors.ErrDuplicate)
		case pgQueryCanceled, pgLockTimeout, pgDeadlock:
			return apperrors.Wrap(apperrors.CodeTimeout, op, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return apperrors.Wrap(apperrors.CodeTimeout, op, err)
	}
	if isTransient(err) {
		return apperrors.Wrap(apperrors.CodeUpstreamError, op, err)
	}
	return apperrors.Wrap(apperrors.CodeInternal, op, err)
}

// advisoryXactLock takes a transaction scoped advisory lock; it is released
// at commit or rollback.
func advisoryXactLock(ctx context.Context, db querier, class int32, name string) error {
	_, err := db.Exec(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`, class, name)
	return mapError(ctx, "advisory lock", err)
}
