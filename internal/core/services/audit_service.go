package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/core/domain"
	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
	"github.com/apgms/apgms/internal/hashchain"
)

type auditService struct {
	BaseService
	store portsrepo.RepositoryProvider
}

func NewAuditService(base BaseService, store portsrepo.RepositoryProvider) *auditService {
	return &auditService{BaseService: base, store: store}
}

func (s *auditService) Bundle(ctx context.Context, abn, periodID string) ([]domain.AuditEvent, error) {
	if periodID == "" {
		return nil, apperrors.New(apperrors.CodeInvalidPayload, "period_id is required")
	}
	if abn != "" && !domain.ValidABN(abn) {
		return nil, apperrors.Newf(apperrors.CodeInvalidPayload, "abn %q must be 11 digits", abn)
	}
	events, err := s.store.Reader.Audit.ListByPeriod(ctx, abn, periodID)
	if err != nil {
		s.LogError(ctx, err, "Failed to list audit events", slog.String("period_id", periodID))
		return nil, apperrors.From(err)
	}
	if events == nil {
		return []domain.AuditEvent{}, nil
	}
	return events, nil
}

// VerifyScope recomputes one scope chain from genesis. BrokeAt is the ID of
// the first event that disagrees.
func (s *auditService) VerifyScope(ctx context.Context, scope domain.AuditScope) (*domain.ChainReport, error) {
	if !scope.Valid() {
		return nil, apperrors.Newf(apperrors.CodeInvalidPayload, "unknown audit scope %q", scope)
	}
	events, err := s.store.Reader.Audit.ListByScope(ctx, scope)
	if err != nil {
		return nil, apperrors.From(err)
	}
	records := make([]hashchain.Record, len(events))
	for i, ev := range events {
		records[i] = hashchain.Record{Payload: ev.Payload, HashPrev: ev.HashPrev, HashThis: ev.HashThis}
	}
	tail, err := hashchain.Verify(records)
	if err != nil {
		var brk *hashchain.BreakError
		if !errors.As(err, &brk) {
			return nil, apperrors.From(err)
		}
		s.GetLogger(ctx).Warn("Audit chain verification failed",
			slog.String("scope", string(scope)), slog.String("reason", brk.Reason))
		return brokenAt(len(events), int(events[brk.Index].ID), brk.Reason), nil
	}
	return &domain.ChainReport{Valid: true, Length: len(events), Tail: tail}, nil
}
