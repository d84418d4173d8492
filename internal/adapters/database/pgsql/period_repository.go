package pgsql

import (
	"context"

	"github.com/apgms/apgms/internal/core/domain"
	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
	"github.com/apgms/apgms/internal/models"
	"github.com/apgms/apgms/internal/utils/mapping"
)

type PgxPeriodRepository struct {
	BaseRepository
}

var _ portsrepo.PeriodRepository = (*PgxPeriodRepository)(nil)

const periodColumns = `abn, tax_type, period_id, state, reason_code, accrued_cents, credited_cents,
	final_liability_cents, merkle_root, running_balance_hash, hash_prev, hash_this,
	rpt_issued_by, last_actor, updated_at`

func (r *PgxPeriodRepository) FindPeriod(ctx context.Context, key domain.PeriodKey) (*domain.Period, error) {
	query := `SELECT ` + periodColumns + ` FROM periods WHERE abn = $1 AND tax_type = $2 AND period_id = $3`
	var m models.Period
	err := r.read(ctx, "find period "+key.String(), func() error {
		return r.db.QueryRow(ctx, query, key.ABN, string(key.TaxType), key.PeriodID).Scan(
			&m.ABN, &m.TaxType, &m.PeriodID, &m.State, &m.ReasonCode,
			&m.AccruedCents, &m.CreditedCents, &m.FinalLiabilityCents,
			&m.MerkleRoot, &m.RunningBalanceHash, &m.HashPrev, &m.HashThis,
			&m.RPTIssuedBy, &m.LastActor, &m.UpdatedAt,
		)
	})
	if err != nil {
		return nil, err
	}
	p := mapping.ToDomainPeriod(m)
	return &p, nil
}

func (r *PgxPeriodRepository) SavePeriod(ctx context.Context, period domain.Period) error {
	m := mapping.ToModelPeriod(period)
	query := `
		INSERT INTO periods (` + periodColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (abn, tax_type, period_id) DO UPDATE SET
			state = EXCLUDED.state,
			reason_code = EXCLUDED.reason_code,
			accrued_cents = EXCLUDED.accrued_cents,
			credited_cents = EXCLUDED.credited_cents,
			final_liability_cents = EXCLUDED.final_liability_cents,
			merkle_root = EXCLUDED.merkle_root,
			running_balance_hash = EXCLUDED.running_balance_hash,
			hash_prev = EXCLUDED.hash_prev,
			hash_this = EXCLUDED.hash_this,
			rpt_issued_by = EXCLUDED.rpt_issued_by,
			last_actor = EXCLUDED.last_actor,
			updated_at = EXCLUDED.updated_at`
	_, err := r.db.Exec(ctx, query,
		m.ABN, m.TaxType, m.PeriodID, m.State, m.ReasonCode,
		m.AccruedCents, m.CreditedCents, m.FinalLiabilityCents,
		m.MerkleRoot, m.RunningBalanceHash, m.HashPrev, m.HashThis,
		m.RPTIssuedBy, m.LastActor, m.UpdatedAt,
	)
	return mapError(ctx, "save period "+period.String(), err)
}
