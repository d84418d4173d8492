package pgsql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/core/domain"
	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
	"github.com/apgms/apgms/internal/models"
	"github.com/apgms/apgms/internal/utils/mapping"
)

type PgxIdempotencyRepository struct {
	BaseRepository
}

var _ portsrepo.IdempotencyRepository = (*PgxIdempotencyRepository)(nil)

func newPgxIdempotencyRepository(db querier) *PgxIdempotencyRepository {
	return &PgxIdempotencyRepository{BaseRepository: BaseRepository{db: db, retryReads: true}}
}

// expiredClause matches rows whose TTL has elapsed at $N.
const expiredClause = `created_at + ttl_secs * interval '1 second' <= `

func (r *PgxIdempotencyRepository) InsertPending(ctx context.Context, record domain.IdempotencyRecord) (bool, error) {
	m, err := mapping.ToModelIdempotencyKey(record)
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeInternal, "encode idempotency record", err)
	}
	query := `
		INSERT INTO idempotency_keys (id, status, ttl_secs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`
	tag, err := r.db.Exec(ctx, query, m.ID, m.Status, m.TTLSecs, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return false, mapError(ctx, "insert idempotency key", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgxIdempotencyRepository) Find(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	query := `
		SELECT id, status, response_hash, response_body, response_headers, http_status,
			response_content_type, failure_cause, ttl_secs, created_at, updated_at
		FROM idempotency_keys WHERE id = $1`
	var m models.IdempotencyKey
	err := r.read(ctx, "find idempotency key", func() error {
		return r.db.QueryRow(ctx, query, key).Scan(&m.ID, &m.Status, &m.ResponseHash, &m.ResponseBody,
			&m.ResponseHeaders, &m.HTTPStatus, &m.ResponseContentType, &m.FailureCause, &m.TTLSecs,
			&m.CreatedAt, &m.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}
	d, err := mapping.ToDomainIdempotencyRecord(m)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "decode idempotency record", err)
	}
	return &d, nil
}

func (r *PgxIdempotencyRepository) MarkApplied(ctx context.Context, key string, response domain.CachedResponse, responseHash string, now time.Time) error {
	headers, err := encodeHeaders(response.Headers)
	if err != nil {
		return err
	}
	query := `
		UPDATE idempotency_keys SET status = $2, response_hash = $3, response_body = $4,
			response_headers = $5, http_status = $6, response_content_type = $7, updated_at = $8
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, key, string(domain.IdempotencyApplied), responseHash, response.Body,
		headers, int32(response.HTTPStatus), response.ContentType, now)
	return r.checkUpdated(ctx, "mark idempotency applied", key, tag.RowsAffected(), err)
}

func (r *PgxIdempotencyRepository) MarkFailed(ctx context.Context, key string, cause string, response *domain.CachedResponse, now time.Time) error {
	var (
		body        []byte
		headers     []byte
		status      *int32
		contentType *string
		err         error
	)
	if response != nil {
		body = response.Body
		if headers, err = encodeHeaders(response.Headers); err != nil {
			return err
		}
		s := int32(response.HTTPStatus)
		status = &s
		contentType = &response.ContentType
	}
	query := `
		UPDATE idempotency_keys SET status = $2, failure_cause = $3, response_body = $4,
			response_headers = $5, http_status = $6, response_content_type = $7, updated_at = $8
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, key, string(domain.IdempotencyFailed), cause, body, headers, status, contentType, now)
	return r.checkUpdated(ctx, "mark idempotency failed", key, tag.RowsAffected(), err)
}

func (r *PgxIdempotencyRepository) ReclaimExpired(ctx context.Context, key string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE id = $1 AND `+expiredClause+`$2`, key, now)
	if err != nil {
		return false, mapError(ctx, "reclaim idempotency key", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgxIdempotencyRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE `+expiredClause+`$1`, now)
	if err != nil {
		return 0, mapError(ctx, "purge idempotency keys", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgxIdempotencyRepository) checkUpdated(ctx context.Context, op, key string, rows int64, err error) error {
	if err != nil {
		return mapError(ctx, op, err)
	}
	if rows == 0 {
		return fmt.Errorf("idempotency key %s: %w", key, apperrors.ErrNotFound)
	}
	return nil
}

func encodeHeaders(h map[string]string) ([]byte, error) {
	if len(h) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "encode response headers", err)
	}
	return b, nil
}
