package pgsql

import (
	"context"
	"time"

	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
)

// PgxJTIRepository is the rpt_jti replay registry.
type PgxJTIRepository struct {
	BaseRepository
}

var _ portsrepo.JTIRegistry = (*PgxJTIRepository)(nil)

func newPgxJTIRepository(db querier) *PgxJTIRepository {
	return &PgxJTIRepository{BaseRepository: BaseRepository{db: db}}
}

func (r *PgxJTIRepository) Consume(ctx context.Context, nonce string, expiresAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO rpt_jti (nonce, expires_at) VALUES ($1, $2) ON CONFLICT (nonce) DO NOTHING`,
		nonce, expiresAt)
	if err != nil {
		return false, mapError(ctx, "consume rpt nonce", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgxJTIRepository) Release(ctx context.Context, nonce string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM rpt_jti WHERE nonce = $1`, nonce)
	return mapError(ctx, "release rpt nonce", err)
}

func (r *PgxJTIRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM rpt_jti WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, mapError(ctx, "purge rpt nonces", err)
	}
	return tag.RowsAffected(), nil
}
