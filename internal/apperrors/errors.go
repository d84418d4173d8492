package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// Code is a stable, machine-readable error identifier surfaced to callers as `error`.
type Code string

const (
	CodeInvalidPayload   Code = "INVALID_PAYLOAD"
	CodeUnsupportedState Code = "UNSUPPORTED_STATE"

	CodeInvalidTransition     Code = "INVALID_TRANSITION"
	CodeBlockedRequiresReason Code = "BLOCKED_REQUIRES_REASON"
	CodeSeparationOfDuties    Code = "SEPARATION_OF_DUTIES"
	CodeGateNotReady          Code = "GATE_NOT_READY"

	CodeLedgerUnderflow Code = "LEDGER_UNDERFLOW"
	CodeLedgerConflict  Code = "LEDGER_CONFLICT"

	CodeRPTMalformed        Code = "RPT_MALFORMED"
	CodeRPTSignatureInvalid Code = "RPT_SIGNATURE_INVALID"
	CodeRPTExpired          Code = "RPT_EXPIRED"
	CodeRPTReplayed         Code = "RPT_REPLAYED"

	CodeIdempotencyInProgress Code = "IDEMPOTENCY_IN_PROGRESS"
	CodeIdempotencyFailed     Code = "IDEMPOTENCY_FAILED"

	CodeTimeout       Code = "TIMEOUT"
	CodeUpstreamError Code = "UPSTREAM_ERROR"
	CodeKillSwitch    Code = "KILL_SWITCH"

	CodeNotFound     Code = "NOT_FOUND"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeRateLimited  Code = "RATE_LIMITED"
	CodeInternal     Code = "INTERNAL"

	// CodeInvalidSignature is only used as a failure cause on remit.
	CodeInvalidSignature Code = "INVALID_SIGNATURE"
)

var statusByCode = map[Code]int{
	CodeInvalidPayload:        http.StatusBadRequest,
	CodeUnsupportedState:      http.StatusBadRequest,
	CodeInvalidTransition:     http.StatusConflict,
	CodeBlockedRequiresReason: http.StatusUnprocessableEntity,
	CodeSeparationOfDuties:    http.StatusForbidden,
	CodeGateNotReady:          http.StatusConflict,
	CodeLedgerUnderflow:       http.StatusUnprocessableEntity,
	CodeLedgerConflict:        http.StatusConflict,
	CodeRPTMalformed:          http.StatusBadRequest,
	CodeRPTSignatureInvalid:   http.StatusBadRequest,
	CodeRPTExpired:            http.StatusBadRequest,
	CodeRPTReplayed:           http.StatusBadRequest,
	CodeIdempotencyInProgress: http.StatusConflict,
	CodeIdempotencyFailed:     http.StatusConflict,
	CodeTimeout:               http.StatusGatewayTimeout,
	CodeUpstreamError:         http.StatusBadGateway,
	CodeKillSwitch:            http.StatusServiceUnavailable,
	CodeNotFound:              http.StatusNotFound,
	CodeUnauthorized:          http.StatusUnauthorized,
	CodeForbidden:             http.StatusForbidden,
	CodeRateLimited:           http.StatusTooManyRequests,
	CodeInternal:              http.StatusInternalServerError,
	CodeInvalidSignature:      http.StatusBadRequest,
}

// StatusFor returns the HTTP status associated with a code.
func StatusFor(code Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// AppError is a taxonomy error carrying its HTTP status, a human readable detail
// and, optionally, the failure cause recorded against an idempotency key.
type AppError struct {
	Code   Code
	Status int
	Detail string
	Cause  Code
	Err    error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.Err)
	}
	if e.Detail == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithCause returns a copy of e tagged with cause.
func (e *AppError) WithCause(cause Code) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

// FailureCause is the cause if set, else the code.
func (e *AppError) FailureCause() Code {
	if e.Cause != "" {
		return e.Cause
	}
	return e.Code
}

// New creates an AppError for code with the standard status.
func New(code Code, detail string) *AppError {
	return &AppError{Code: code, Status: StatusFor(code), Detail: detail}
}

// Newf is New with a format string.
func Newf(code Code, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates an AppError for code that wraps err.
func Wrap(code Code, detail string, err error) *AppError {
	return &AppError{Code: code, Status: StatusFor(code), Detail: detail, Err: err}
}

// NewAppError wraps a low level failure with an explicit status. Persistence
// adapters use it for begin/commit/rollback failures.
func NewAppError(status int, detail string, err error) *AppError {
	code := CodeInternal
	switch status {
	case http.StatusBadRequest:
		code = CodeInvalidPayload
	case http.StatusNotFound:
		code = CodeNotFound
	case http.StatusBadGateway:
		code = CodeUpstreamError
	case http.StatusGatewayTimeout:
		code = CodeTimeout
	}
	return &AppError{Code: code, Status: status, Detail: detail, Err: err}
}

// From converts any error to an AppError. Context deadlines map to TIMEOUT and
// the sentinel errors map to their taxonomy equivalents.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return Wrap(CodeTimeout, "operation deadline exceeded", err)
	case errors.Is(err, ErrNotFound):
		return Wrap(CodeNotFound, "resource not found", err)
	case errors.Is(err, ErrValidation):
		return Wrap(CodeInvalidPayload, err.Error(), err)
	case errors.Is(err, ErrDuplicate):
		return Wrap(CodeLedgerConflict, "conflicting concurrent write", err)
	default:
		return Wrap(CodeInternal, "internal error", err)
	}
}

// CodeOf returns the taxonomy code for err.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	return From(err).Code
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
