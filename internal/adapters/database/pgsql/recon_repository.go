package pgsql

import (
	"context"

	"github.com/apgms/apgms/internal/core/domain"
	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
	"github.com/apgms/apgms/internal/models"
	"github.com/apgms/apgms/internal/utils/mapping"
)

type PgxReconRepository struct {
	BaseRepository
}

var _ portsrepo.ReconRepository = (*PgxReconRepository)(nil)

const reconColumns = `id, abn, tax_type, period_id, expected_cents, actual_cents, delta_cents,
	tolerance_cents, tolerance_bps, anomaly_ppm, ceiling_ppm, status, reason_codes, next_state, created_at`

func (r *PgxReconRepository) InsertResult(ctx context.Context, result domain.ReconResult) error {
	m := mapping.ToModelReconResult(result)
	query := `INSERT INTO recon_results (` + reconColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.db.Exec(ctx, query, m.ID, m.ABN, m.TaxType, m.PeriodID, m.ExpectedCents, m.ActualCents,
		m.DeltaCents, m.ToleranceCents, m.ToleranceBPS, m.AnomalyPPM, m.CeilingPPM, m.Status,
		m.ReasonCodes, m.NextState, m.CreatedAt)
	return mapError(ctx, "insert recon result", err)
}

func (r *PgxReconRepository) LatestResult(ctx context.Context, key domain.PeriodKey) (*domain.ReconResult, error) {
	query := `SELECT ` + reconColumns + ` FROM recon_results
		WHERE abn = $1 AND tax_type = $2 AND period_id = $3
		ORDER BY created_at DESC, seq DESC LIMIT 1`
	var m models.ReconResult
	err := r.read(ctx, "latest recon "+key.String(), func() error {
		return r.db.QueryRow(ctx, query, key.ABN, string(key.TaxType), key.PeriodID).Scan(
			&m.ID, &m.ABN, &m.TaxType, &m.PeriodID, &m.ExpectedCents, &m.ActualCents, &m.DeltaCents,
			&m.ToleranceCents, &m.ToleranceBPS, &m.AnomalyPPM, &m.CeilingPPM, &m.Status,
			&m.ReasonCodes, &m.NextState, &m.CreatedAt,
		)
	})
	if err != nil {
		return nil, err
	}
	d := mapping.ToDomainReconResult(m)
	return &d, nil
}
