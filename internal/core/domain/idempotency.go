package domain

import "time"

type IdempotencyStatus string

const (
	IdempotencyPending IdempotencyStatus = "PENDING"
	IdempotencyApplied IdempotencyStatus = "APPLIED"
	IdempotencyFailed  IdempotencyStatus = "FAILED"
)

// IdempotencyRecord is the stored outcome of a keyed mutating request.
type IdempotencyRecord struct {
	Key          string
	Status       IdempotencyStatus
	ResponseHash string
	Response     CachedResponse
	FailureCause string
	TTL          time.Duration
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ExpiresAt is the end of the record's replay window.
func (r IdempotencyRecord) ExpiresAt() time.Time {
	return r.CreatedAt.Add(r.TTL)
}

// Expired reports whether the record may be reclaimed at now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt())
}

// CachedResponse is a captured HTTP response replayed verbatim.
type CachedResponse struct {
	HTTPStatus  int
	Body        []byte
	Headers     map[string]string
	ContentType string
}

type AcquireOutcome string

const (
	OutcomeAcquired   AcquireOutcome = "ACQUIRED"
	OutcomeReplay     AcquireOutcome = "REPLAY"
	OutcomeInProgress AcquireOutcome = "IN_PROGRESS"
	OutcomeFailed     AcquireOutcome = "FAILED"
)

// AcquireResult is the tagged result of acquiring a key. Record is set for
// every outcome except a fresh ACQUIRED.
type AcquireResult struct {
	Outcome    AcquireOutcome
	Record     *IdempotencyRecord
	WasCreated bool
}
