package pgsql

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, mapError(ctx, "op", nil))
	assert.ErrorIs(t, mapError(ctx, "op", pgx.ErrNoRows), apperrors.ErrNotFound)
	assert.ErrorIs(t, mapError(ctx, "op", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "owa_ledger_seq_unique"}), apperrors.ErrDuplicate)

	for _, code := range []string{pgQueryCanceled, pgLockTimeout, pgDeadlock} {
		err := mapError(ctx, "op", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: code}))
		assert.True(t, apperrors.Is(err, apperrors.CodeTimeout), code)
	}

	assert.True(t, apperrors.Is(mapError(ctx, "op", context.DeadlineExceeded), apperrors.CodeTimeout))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.True(t, apperrors.Is(mapError(cancelled, "op", errors.New("conn closed")), apperrors.CodeTimeout))

	assert.True(t, apperrors.Is(mapError(ctx, "op", errors.New("boom")), apperrors.CodeInternal))
}

func TestMapErrorTransient(t *testing.T) {
	ctx := context.Background()

	for _, err := range []error{
		&pgconn.PgError{Code: "08006"},
		&pgconn.PgError{Code: pgAdminShutdown},
		&pgconn.PgError{Code: pgTooManyConnections},
		fmt.Errorf("read: %w", io.ErrUnexpectedEOF),
	} {
		assert.True(t, apperrors.Is(mapError(ctx, "op", err), apperrors.CodeUpstreamError), err.Error())
	}
	assert.False(t, isTransient(context.Canceled))
	assert.False(t, isTransient(&pgconn.PgError{Code: pgUniqueViolation}))
}

func TestReadRetriesOnce(t *testing.T) {
	ctx := context.Background()
	pooled := BaseRepository{retryReads: true}
	transient := &pgconn.PgError{Code: pgAdminShutdown}

	t.Run("transient then success", func(t *testing.T) {
		calls := 0
		err := pooled.read(ctx, "op", func() error {
			calls++
			if calls == 1 {
				return transient
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("exhausted surfaces upstream error", func(t *testing.T) {
		calls := 0
		err := pooled.read(ctx, "op", func() error {
			calls++
			return transient
		})
		assert.True(t, apperrors.Is(err, apperrors.CodeUpstreamError))
		assert.Equal(t, readAttempts, calls)
	})

	t.Run("not found is not retried", func(t *testing.T) {
		calls := 0
		err := pooled.read(ctx, "op", func() error {
			calls++
			return pgx.ErrNoRows
		})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.Equal(t, 1, calls)
	})

	t.Run("transaction bound reads are not retried", func(t *testing.T) {
		calls := 0
		err := BaseRepository{}.read(ctx, "op", func() error {
			calls++
			return transient
		})
		assert.True(t, apperrors.Is(err, apperrors.CodeUpstreamError))
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context is not retried", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		calls := 0
		err := pooled.read(cancelled, "op", func() error {
			calls++
			return transient
		})
		assert.True(t, apperrors.Is(err, apperrors.CodeTimeout))
		assert.Equal(t, 1, calls)
	})
}
