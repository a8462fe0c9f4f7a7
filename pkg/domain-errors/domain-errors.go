package domainerrors

import (
	"errors"
	"time"
)

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in security terms, not HTTP terms.
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeValidation   Code = "validation_failed"
	CodeInternal     Code = "internal_error"
	CodeUnauthorized Code = "unauthorized"
	CodeTimeout      Code = "timeout"

	// Abuse protection
	CodeRateLimitExceeded Code = "rate_limit_exceeded"
	CodeAccountLocked     Code = "account_locked"

	// Sessions
	CodeSessionNotFound Code = "session_not_found"
	CodeSessionExpired  Code = "session_expired"

	// Two-factor authentication
	CodeTwoFactorRequired    Code = "two_factor_required"
	CodeTwoFactorNotEnabled  Code = "two_factor_not_enabled"
	CodeInvalidTwoFactorCode Code = "invalid_two_factor_code"
	CodeAlreadyEnabled       Code = "already_enabled"
	CodeMissingContact       Code = "missing_contact"
	CodeBackupCodeNotFound   Code = "backup_code_not_found"

	// Wrong password or tampered payload
	CodeCryptoFailure Code = "crypto_failure"
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Message string
	Err     error
	// RetryAfter is set for rate limit and lockout denials.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// NewRetryable creates a denial error that tells the caller when to try again.
func NewRetryable(code Code, msg string, retryAfter time.Duration) error {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &Error{Code: code, Message: msg, RetryAfter: retryAfter}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err, RetryAfter: existing.RetryAfter}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the domain code of err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// RetryAfter extracts the retry hint from a denial error.
func RetryAfter(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}
