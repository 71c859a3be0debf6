package auth

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the closed set of failure classes surfaced to callers.
type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindConflict           Kind = "conflict"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindAccountLocked      Kind = "account_locked"
	KindAccountBlocked     Kind = "account_blocked"
	KindAccountUnverified  Kind = "account_unverified"
	KindOtpInvalid         Kind = "otp_invalid"
	KindOtpMismatch        Kind = "otp_mismatch"
	KindOtpExhausted       Kind = "otp_exhausted"
	KindRateLimited        Kind = "rate_limited"
	KindTokenInvalid       Kind = "token_invalid"
	KindTokenExpired       Kind = "token_expired"
	KindNotFound           Kind = "not_found"
	KindInternal           Kind = "internal_error"
)

// Store sentinels. Implementations translate driver errors into these.
var (
	ErrIdentifierTaken = errors.New("auth: email or phone already registered")
	ErrRefreshReplayed = errors.New("auth: refresh token already rotated")
	// ErrAccountLocked is returned by CompleteLogin when a lock became active
	// after the user row was read.
	ErrAccountLocked = errors.New("auth: account locked")
)

// Error carries a kind, a message key into the localized catalog and the data
// needed to render it.
type Error struct {
	Kind Kind
	Key  string
	Args []any
	// Remaining is set for wrong passwords and wrong OTP codes.
	Remaining *int
	// RetryAfter is set for lockouts and cooldowns.
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Key, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Key)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

func newError(kind Kind, key string, args ...any) *Error {
	return &Error{Kind: kind, Key: key, Args: args}
}

func internal(op string, cause error) *Error {
	return &Error{Kind: KindInternal, Key: msgInternal, Cause: fmt.Errorf("%s: %w", op, cause)}
}

func validation(key string) *Error { return newError(KindValidation, key) }

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
