package pgsql

import (
	"context"
	"fmt"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/core/domain"
	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
	"github.com/apgms/apgms/internal/models"
	"github.com/apgms/apgms/internal/utils/mapping"
)

type PgxRPTRepository struct {
	BaseRepository
}

var _ portsrepo.RPTRepository = (*PgxRPTRepository)(nil)

const rptColumns = `id, abn, tax_type, period_id, token, nonce, kid, amount_cents, payload_c14n,
	payload_sha256, signature, status, issued_by, issued_at, expires_at`

func (r *PgxRPTRepository) InsertToken(ctx context.Context, record domain.RPTRecord) error {
	m := mapping.ToModelRPTToken(record)
	query := `INSERT INTO rpt_tokens (` + rptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.db.Exec(ctx, query, m.ID, m.ABN, m.TaxType, m.PeriodID, m.Token, m.Nonce, m.KeyID,
		m.AmountCents, m.PayloadC14N, m.PayloadSHA256, m.Signature, m.Status, m.IssuedBy,
		m.IssuedAt, m.ExpiresAt)
	return mapError(ctx, "insert rpt token", err)
}

func (r *PgxRPTRepository) LatestToken(ctx context.Context, key domain.PeriodKey) (*domain.RPTRecord, error) {
	query := `SELECT ` + rptColumns + ` FROM rpt_tokens
		WHERE abn = $1 AND tax_type = $2 AND period_id = $3
		ORDER BY issued_at DESC, seq DESC LIMIT 1`
	var m models.RPTToken
	err := r.read(ctx, "latest rpt "+key.String(), func() error {
		return r.db.QueryRow(ctx, query, key.ABN, string(key.TaxType), key.PeriodID).Scan(
			&m.ID, &m.ABN, &m.TaxType, &m.PeriodID, &m.Token, &m.Nonce, &m.KeyID, &m.AmountCents,
			&m.PayloadC14N, &m.PayloadSHA256, &m.Signature, &m.Status, &m.IssuedBy, &m.IssuedAt, &m.ExpiresAt,
		)
	})
	if err != nil {
		return nil, err
	}
	d := mapping.ToDomainRPTRecord(m)
	return &d, nil
}

func (r *PgxRPTRepository) UpdateTokenStatus(ctx context.Context, nonce string, status domain.RPTStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE rpt_tokens SET status = $2 WHERE nonce = $1`, nonce, string(status))
	if err != nil {
		return mapError(ctx, "update rpt status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rpt nonce %s: %w", nonce, apperrors.ErrNotFound)
	}
	return nil
}
