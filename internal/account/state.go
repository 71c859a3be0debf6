// Package account holds the lifecycle rules for a user's status, verification
// flags and the brute-force lockout counter. It performs no I/O.
package account

import (
	"errors"
	"math"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth/internal/user/entity"
)

const (
	LockThreshold = 5
	LockDuration  = 30 * time.Minute
)

var (
	ErrPendingVerification = errors.New("account: pending verification")
	ErrSuspended           = errors.New("account: suspended")
	ErrDeleted             = errors.New("account: deleted")
	ErrInvalidTransition   = errors.New("account: invalid status transition")
)

// CanTransition reports whether from -> to is a legal status change.
// Suspension and deletion are administrative and allowed from any state;
// deleted is terminal.
func CanTransition(from, to entity.Status) bool {
	if from == to {
		return false
	}
	switch to {
	case entity.StatusActive:
		return from == entity.StatusPending || from == entity.StatusSuspended
	case entity.StatusSuspended:
		return from != entity.StatusDeleted
	case entity.StatusDeleted:
		return true
	default:
		return false
	}
}

// RequiredChannelsVerified reports whether the channel the account registered
// with has been proven. Federated accounts rely on the provider's email.
func RequiredChannelsVerified(u *entity.User) bool {
	switch u.RegistrationMethod {
	case entity.RegisteredByPhone:
		return u.PhoneVerified
	default:
		return u.EmailVerified
	}
}

// ApplyVerification marks channel ("email" or "phone") verified and activates a
// pending account once its required channel is proven. It reports whether
// the status changed.
func ApplyVerification(u *entity.User, channel string) bool {
	switch channel {
	case "email":
		u.EmailVerified = true
	case "phone":
		u.PhoneVerified = true
	}
	if u.Status == entity.StatusPending && RequiredChannelsVerified(u) && CanTransition(u.Status, entity.StatusActive) {
		u.Status = entity.StatusActive
		return true
	}
	return false
}

// LoginGate blocks every status but active.
func LoginGate(u *entity.User) error {
	switch u.Status {
	case entity.StatusActive:
		return nil
	case entity.StatusSuspended:
		return ErrSuspended
	case entity.StatusDeleted:
		return ErrDeleted
	case entity.StatusPending:
		return ErrPendingVerification
	default:
		return ErrInvalidTransition
	}
}

// LockRemaining is the time left on an active lock, or zero.
func LockRemaining(u *entity.User, now time.Time) time.Duration {
	if u.LockedUntil == nil || !u.LockedUntil.After(now) {
		return 0
	}
	return u.LockedUntil.Sub(now)
}

// ShouldLock reports whether a failure counter has reached the threshold.
func ShouldLock(attempts int) bool { return attempts >= LockThreshold }

// RemainingAttempts before the account locks.
func RemainingAttempts(attempts int) int {
	if r := LockThreshold - attempts; r > 0 {
		return r
	}
	return 0
}

// CeilMinutes rounds a wait up to whole minutes for display.
func CeilMinutes(d time.Duration) int {
	return int(math.Ceil(d.Minutes()))
}
