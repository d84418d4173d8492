package pgsql

import (
	"context"
	"errors"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/core/domain"
	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
	"github.com/apgms/apgms/internal/models"
	"github.com/apgms/apgms/internal/utils/mapping"
	"github.com/jackc/pgx/v5"
)

type PgxLedgerRepository struct {
	BaseRepository
}

var _ portsrepo.LedgerRepository = (*PgxLedgerRepository)(nil)

const ledgerColumns = `id, abn, tax_type, period_id, seq, amount_cents, balance_after_cents,
	bank_receipt_hash, hash_prev, hash_this, created_at`

func scanLedgerEntry(row pgx.Row) (models.LedgerEntry, error) {
	var m models.LedgerEntry
	err := row.Scan(&m.ID, &m.ABN, &m.TaxType, &m.PeriodID, &m.Seq, &m.AmountCents,
		&m.BalanceAfterCents, &m.BankReceiptHash, &m.HashPrev, &m.HashThis, &m.CreatedAt)
	return m, err
}

func (r *PgxLedgerRepository) LastEntry(ctx context.Context, key domain.PeriodKey) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM owa_ledger
		WHERE abn = $1 AND tax_type = $2 AND period_id = $3
		ORDER BY seq DESC LIMIT 1`
	var m models.LedgerEntry
	err := r.read(ctx, "ledger tail "+key.String(), func() (err error) {
		m, err = scanLedgerEntry(r.db.QueryRow(ctx, query, key.ABN, string(key.TaxType), key.PeriodID))
		return err
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	e := mapping.ToDomainLedgerEntry(m)
	return &e, nil
}

func (r *PgxLedgerRepository) FindByReceipt(ctx context.Context, key domain.PeriodKey, bankReceiptHash string) (*domain.LedgerEntry, error) {
	if bankReceiptHash == "" {
		return nil, apperrors.ErrNotFound
	}
	query := `SELECT ` + ledgerColumns + ` FROM owa_ledger
		WHERE abn = $1 AND tax_type = $2 AND period_id = $3 AND bank_receipt_hash = $4`
	var m models.LedgerEntry
	err := r.read(ctx, "find ledger receipt", func() (err error) {
		m, err = scanLedgerEntry(r.db.QueryRow(ctx, query, key.ABN, string(key.TaxType), key.PeriodID, bankReceiptHash))
		return err
	})
	if err != nil {
		return nil, err
	}
	e := mapping.ToDomainLedgerEntry(m)
	return &e, nil
}

func (r *PgxLedgerRepository) InsertEntry(ctx context.Context, entry domain.LedgerEntry) error {
	m := mapping.ToModelLedgerEntry(entry)
	query := `INSERT INTO owa_ledger (` + ledgerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.Exec(ctx, query, m.ID, m.ABN, m.TaxType, m.PeriodID, m.Seq, m.AmountCents,
		m.BalanceAfterCents, m.BankReceiptHash, m.HashPrev, m.HashThis, m.CreatedAt)
	return mapError(ctx, "insert ledger entry", err)
}

func (r *PgxLedgerRepository) ListEntries(ctx context.Context, key domain.PeriodKey) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM owa_ledger
		WHERE abn = $1 AND tax_type = $2 AND period_id = $3
		ORDER BY seq`
	var ms []models.LedgerEntry
	err := r.read(ctx, "list ledger "+key.String(), func() error {
		rows, err := r.db.Query(ctx, query, key.ABN, string(key.TaxType), key.PeriodID)
		if err != nil {
			return err
		}
		ms, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.LedgerEntry, error) {
			return scanLedgerEntry(row)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return mapping.ToDomainLedgerEntrySlice(ms), nil
}

func (r *PgxLedgerRepository) SumCredits(ctx context.Context, key domain.PeriodKey) (int64, error) {
	query := `SELECT COALESCE(SUM(amount_cents), 0)::bigint FROM owa_ledger
		WHERE abn = $1 AND tax_type = $2 AND period_id = $3 AND amount_cents > 0`
	var sum int64
	err := r.read(ctx, "sum credits "+key.String(), func() error {
		return r.db.QueryRow(ctx, query, key.ABN, string(key.TaxType), key.PeriodID).Scan(&sum)
	})
	if err != nil {
		return 0, err
	}
	return sum, nil
}
