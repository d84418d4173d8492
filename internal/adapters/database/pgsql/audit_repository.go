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

type PgxAuditRepository struct {
	BaseRepository
}

var _ portsrepo.AuditRepository = (*PgxAuditRepository)(nil)

const auditColumns = `id, scope, abn, tax_type, period_id, event_kind, actor, payload, hash_prev, hash_this, created_at`

func (r *PgxAuditRepository) Tail(ctx context.Context, scope domain.AuditScope) (string, error) {
	var tail string
	err := r.read(ctx, "audit tail", func() error {
		return r.db.QueryRow(ctx, `SELECT hash_this FROM audit_log WHERE scope = $1 ORDER BY id DESC LIMIT 1`, string(scope)).Scan(&tail)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return tail, nil
}

// InsertEvent stores the payload as bytea so the hashed bytes survive verbatim.
func (r *PgxAuditRepository) InsertEvent(ctx context.Context, event *domain.AuditEvent) error {
	m := mapping.ToModelAuditEvent(*event)
	query := `
		INSERT INTO audit_log (scope, abn, tax_type, period_id, event_kind, actor, payload, hash_prev, hash_this, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	err := r.db.QueryRow(ctx, query, m.Scope, m.ABN, m.TaxType, m.PeriodID, m.EventKind, m.Actor,
		m.Payload, m.HashPrev, m.HashThis, m.CreatedAt).Scan(&event.ID)
	return mapError(ctx, "insert audit event", err)
}

func (r *PgxAuditRepository) ListByPeriod(ctx context.Context, abn, periodID string) ([]domain.AuditEvent, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_log
		WHERE period_id = $1 AND ($2 = '' OR abn = $2)
		ORDER BY id`
	return r.list(ctx, "list audit by period", query, periodID, abn)
}

func (r *PgxAuditRepository) ListByScope(ctx context.Context, scope domain.AuditScope) ([]domain.AuditEvent, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_log WHERE scope = $1 ORDER BY id`
	return r.list(ctx, "list audit by scope", query, string(scope))
}

func (r *PgxAuditRepository) list(ctx context.Context, op, query string, args ...any) ([]domain.AuditEvent, error) {
	var ms []models.AuditEvent
	err := r.read(ctx, op, func() error {
		rows, err := r.db.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		ms, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.AuditEvent, error) {
			var m models.AuditEvent
			err := row.Scan(&m.ID, &m.Scope, &m.ABN, &m.TaxType, &m.PeriodID, &m.EventKind, &m.Actor,
				&m.Payload, &m.HashPrev, &m.HashThis, &m.CreatedAt)
			return m, err
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return mapping.ToDomainAuditEventSlice(ms), nil
}
