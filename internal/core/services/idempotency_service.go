package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/canonical"
	"github.com/apgms/apgms/internal/core/domain"
	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
)

// acquireAttempts bounds the insert/reclaim loop when another request races us
// for an expired key.
const acquireAttempts = 3

type idempotencyService struct {
	BaseService
	repo portsrepo.IdempotencyRepository
	jti  portsrepo.JTIRegistry
}

func NewIdempotencyService(base BaseService, repo portsrepo.IdempotencyRepository, jti portsrepo.JTIRegistry) *idempotencyService {
	return &idempotencyService{BaseService: base, repo: repo, jti: jti}
}

// Acquire claims key for the caller. With sharePending a concurrent PENDING
// record is returned as ACQUIRED with WasCreated=false so the caller can join
// the in-flight operation.
func (s *idempotencyService) Acquire(ctx context.Context, key string, ttl time.Duration, sharePending bool) (*domain.AcquireResult, error) {
	if key == "" {
		return nil, apperrors.New(apperrors.CodeInvalidPayload, "idempotency key is required")
	}
	now := s.Now()
	rec := domain.IdempotencyRecord{
		Key:       key,
		Status:    domain.IdempotencyPending,
		TTL:       ttl,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for attempt := 0; attempt < acquireAttempts; attempt++ {
		inserted, err := s.repo.InsertPending(ctx, rec)
		if err != nil {
			return nil, apperrors.From(err)
		}
		if inserted {
			return s.outcome(&domain.AcquireResult{Outcome: domain.OutcomeAcquired, WasCreated: true}), nil
		}

		existing, err := s.repo.Find(ctx, key)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, apperrors.From(err)
		}
		if existing.Expired(now) {
			if _, err := s.repo.ReclaimExpired(ctx, key, now); err != nil {
				return nil, apperrors.From(err)
			}
			s.LogDebug(ctx, "Reclaimed expired idempotency key", slog.String("idempotency_key", key))
			continue
		}

		switch existing.Status {
		case domain.IdempotencyApplied:
			return s.outcome(&domain.AcquireResult{Outcome: domain.OutcomeReplay, Record: existing}), nil
		case domain.IdempotencyFailed:
			return s.outcome(&domain.AcquireResult{Outcome: domain.OutcomeFailed, Record: existing}), nil
		default:
			if sharePending {
				return s.outcome(&domain.AcquireResult{Outcome: domain.OutcomeAcquired, Record: existing}), nil
			}
			return s.outcome(&domain.AcquireResult{Outcome: domain.OutcomeInProgress, Record: existing}), nil
		}
	}
	return s.outcome(&domain.AcquireResult{Outcome: domain.OutcomeInProgress}), nil
}

func (s *idempotencyService) outcome(r *domain.AcquireResult) *domain.AcquireResult {
	s.Metrics.IdempotencyOutcome(string(r.Outcome))
	return r
}

func (s *idempotencyService) MarkApplied(ctx context.Context, key string, response domain.CachedResponse) error {
	if err := s.repo.MarkApplied(ctx, key, response, ResponseHash(response.Body), s.Now()); err != nil {
		s.LogError(ctx, err, "Failed to mark idempotency key applied", slog.String("idempotency_key", key))
		return apperrors.From(err)
	}
	return nil
}

func (s *idempotencyService) MarkFailed(ctx context.Context, key string, cause string, response *domain.CachedResponse) error {
	if err := s.repo.MarkFailed(ctx, key, cause, response, s.Now()); err != nil {
		s.LogError(ctx, err, "Failed to mark idempotency key failed", slog.String("idempotency_key", key))
		return apperrors.From(err)
	}
	return nil
}

func (s *idempotencyService) Sweep(ctx context.Context) (int64, int64, error) {
	now := s.Now()
	idem, err := s.repo.PurgeExpired(ctx, now)
	if err != nil {
		return 0, 0, apperrors.From(err)
	}
	s.Metrics.Swept("idempotency", idem)

	var jti int64
	if s.jti != nil {
		if jti, err = s.jti.PurgeExpired(ctx, now); err != nil {
			return idem, 0, apperrors.From(err)
		}
		s.Metrics.Swept("jti", jti)
	}
	if idem > 0 || jti > 0 {
		s.LogInfo(ctx, "Swept expired rows", slog.Int64("idempotency", idem), slog.Int64("jti", jti))
	}
	return idem, jti, nil
}

// ResponseHash fingerprints a response body: the SHA-256 of its canonical form
// when it is JSON, else of the raw bytes.
func ResponseHash(body []byte) string {
	if normalized, err := canonical.Normalize(body); err == nil {
		return canonical.SHA256Hex(normalized)
	}
	return canonical.SHA256Hex(body)
}
