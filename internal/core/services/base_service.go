package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/canonical"
	"github.com/apgms/apgms/internal/core/domain"
	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
	"github.com/apgms/apgms/internal/hashchain"
	"github.com/apgms/apgms/internal/middleware"
	"github.com/apgms/apgms/internal/platform/clock"
	"github.com/apgms/apgms/internal/platform/metrics"
)

// BaseService provides common functionality for all services
type BaseService struct {
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// NewBaseService fills in the system clock when clk is nil.
func NewBaseService(clk clock.Clock, m *metrics.Metrics) BaseService {
	if clk == nil {
		clk = clock.System{}
	}
	return BaseService{Clock: clk, Metrics: m}
}

// Now reads the service clock in UTC.
func (s *BaseService) Now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

// GetLogger gets the logger from context or returns a default one
func (s *BaseService) GetLogger(ctx context.Context) *slog.Logger {
	return middleware.GetLoggerFromCtx(ctx)
}

// LogError logs an error with consistent formatting
func (s *BaseService) LogError(ctx context.Context, err error, msg string, keyvals ...any) {
	logger := s.GetLogger(ctx)
	args := make([]any, 0, len(keyvals)+2)
	args = append(args, slog.String("error", err.Error()))
	if code := apperrors.CodeOf(err); code != "" {
		args = append(args, slog.String("error_code", string(code)))
	}
	args = append(args, keyvals...)
	logger.Error(msg, args...)
}

// LogInfo logs an info message with consistent formatting
func (s *BaseService) LogInfo(ctx context.Context, msg string, keyvals ...any) {
	logger := s.GetLogger(ctx)
	logger.Info(msg, keyvals...)
}

// LogDebug logs a debug message with consistent formatting
func (s *BaseService) LogDebug(ctx context.Context, msg string, keyvals ...any) {
	logger := s.GetLogger(ctx)
	logger.Debug(msg, keyvals...)
}

// lockPeriod takes the period lock and records the wait.
func (s *BaseService) lockPeriod(ctx context.Context, repos portsrepo.Repositories, key domain.PeriodKey) error {
	start := time.Now()
	err := repos.Locks.LockPeriod(ctx, key)
	s.Metrics.LockWait("period", time.Since(start))
	return err
}

// appendAudit links payload onto the scope chain. The scope lock is held
// until the surrounding transaction ends.
func (s *BaseService) appendAudit(ctx context.Context, repos portsrepo.Repositories, ev domain.AuditEvent, payload any) (*domain.AuditEvent, error) {
	body, err := canonical.Marshal(payload)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	if err := repos.Locks.LockScope(ctx, ev.Scope); err != nil {
		return nil, err
	}
	s.Metrics.LockWait("audit_"+string(ev.Scope), time.Since(start))

	tail, err := repos.Audit.Tail(ctx, ev.Scope)
	if err != nil {
		return nil, err
	}
	hash, err := hashchain.LinkHex(tail, body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "audit chain tail is corrupt", err)
	}
	ev.Payload = body
	ev.HashPrev = tail
	ev.HashThis = hash
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.Now()
	}
	if err := repos.Audit.InsertEvent(ctx, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// isNotFound reports whether err is the repositories' not found sentinel.
func isNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}
