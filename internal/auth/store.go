package auth

import (
	"context"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth/internal/otp"
	otpentity "github.com/ovaphlow/pitchfork/service-auth/internal/otp/entity"
	profileentity "github.com/ovaphlow/pitchfork/service-auth/internal/profile/entity"
	tokenentity "github.com/ovaphlow/pitchfork/service-auth/internal/token/entity"
	userentity "github.com/ovaphlow/pitchfork/service-auth/internal/user/entity"
)

// LoginRecord is written as one unit when a login succeeds.
type LoginRecord struct {
	UserID       int64
	At           time.Time
	History      *userentity.LoginHistory
	Refresh      *tokenentity.RefreshToken
	ResetLockout bool
}

// Store is everything the service persists. Missing rows are reported as
// sql.ErrNoRows; unique violations on email or phone as ErrIdentifierTaken.
type Store interface {
	otp.Store

	UserByEmail(ctx context.Context, email string) (*userentity.User, error)
	UserByPhone(ctx context.Context, phone string) (*userentity.User, error)
	UserByID(ctx context.Context, id int64) (*userentity.User, error)
	RoleIDByName(ctx context.Context, name string) (int64, error)

	// CreateAccount inserts the user and its profile atomically.
	CreateAccount(ctx context.Context, u *userentity.User, p *profileentity.Profile) error
	// IncrementLoginAttempts bumps the failure counter and returns the new
	// value. A lock that has already expired at now starts a fresh count.
	IncrementLoginAttempts(ctx context.Context, userID int64, now time.Time) (int, error)
	LockUser(ctx context.Context, userID int64, until time.Time) error
	// CompleteLogin resets lockout (when asked), stamps last_login_at, appends
	// history and persists the new refresh token in one transaction. When
	// asked to reset lockout it fails with ErrAccountLocked, writing nothing,
	// if a lock is active at rec.At.
	CompleteLogin(ctx context.Context, rec LoginRecord) error
	AppendLoginHistory(ctx context.Context, h *userentity.LoginHistory) error
	LoginHistory(ctx context.Context, userID int64, limit int) ([]userentity.LoginHistory, error)
	// MarkVerified flags the channel and activates the account when allowed,
	// returning the updated user.
	MarkVerified(ctx context.Context, userID int64, channel otpentity.Channel) (*userentity.User, error)
	// UpdatePassword stores a new hash, clears lockout and revokes every live
	// refresh token of the user in one transaction.
	UpdatePassword(ctx context.Context, userID int64, hash, algo string, at time.Time) error

	Profile(ctx context.Context, userID int64) (*profileentity.Profile, error)
	UpdateFCMToken(ctx context.Context, userID int64, token string) error

	RefreshToken(ctx context.Context, token string) (*tokenentity.RefreshToken, error)
	// RotateRefreshToken revokes old (only if still live) pointing it at next,
	// and inserts next. Returns ErrRefreshReplayed when old was already revoked.
	RotateRefreshToken(ctx context.Context, old, next *tokenentity.RefreshToken, at time.Time) error
	RevokeRefreshToken(ctx context.Context, userID int64, token string, at time.Time) (bool, error)
	RevokeAllRefreshTokens(ctx context.Context, userID int64, at time.Time) (int64, error)
}
