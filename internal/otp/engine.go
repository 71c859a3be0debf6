package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth/internal/otp/entity"
)

const (
	CodeLength         = 6
	TTL                = 10 * time.Minute
	ResendCooldown     = 60 * time.Second
	DefaultMaxAttempts = 5
)

var (
	ErrNotFound        = errors.New("otp: no live code")
	ErrTooManyAttempts = errors.New("otp: too many attempts")
)

// MismatchError is returned for a wrong code while attempts remain.
type MismatchError struct {
	Remaining int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("otp: code mismatch, %d attempts remaining", e.Remaining)
}

// Store is the persistence the engine needs. Missing rows are sql.ErrNoRows.
type Store interface {
	UpsertOtp(ctx context.Context, c *entity.Code) error
	FindLiveOtp(ctx context.Context, target string, channel entity.Channel, now time.Time) (*entity.Code, error)
	// UseOtpAttempt increments the counter only while it is below the cap
	// and returns the new value, or sql.ErrNoRows once the cap is reached.
	UseOtpAttempt(ctx context.Context, id int64) (int, error)
	// MarkOtpUsed consumes the record only if it still holds code.
	MarkOtpUsed(ctx context.Context, id int64, code string) (bool, error)
	DeleteOtp(ctx context.Context, id int64) error
}

type Engine struct {
	store Store
	now   func() time.Time
	rand  io.Reader
}

func NewEngine(store Store, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{store: store, now: now, rand: rand.Reader}
}

// NormalizeTarget lowercases emails and trims phone numbers.
func NormalizeTarget(channel entity.Channel, target string) string {
	target = strings.TrimSpace(target)
	if channel == entity.ChannelEmail {
		return strings.ToLower(target)
	}
	return target
}

// Generate draws a zero-padded numeric code and its expiry.
func (e *Engine) Generate() (string, time.Time, error) {
	n, err := rand.Int(e.rand, big.NewInt(1_000_000))
	if err != nil {
		return "", time.Time{}, err
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), e.now().Add(TTL), nil
}

type IssueParams struct {
	UserID      *int64
	Channel     entity.Channel
	Target      string
	Purpose     entity.Purpose
	Code        string
	ExpiresAt   time.Time
	MaxAttempts int
}

// Issue replaces whatever record exists for (target, channel). When Code is
// empty a fresh one is generated. The returned record carries the plain code
// for delivery.
func (e *Engine) Issue(ctx context.Context, p IssueParams) (*entity.Code, error) {
	if p.Code == "" {
		code, exp, err := e.Generate()
		if err != nil {
			return nil, err
		}
		p.Code, p.ExpiresAt = code, exp
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	c := &entity.Code{
		UserID:      p.UserID,
		Channel:     p.Channel,
		Target:      NormalizeTarget(p.Channel, p.Target),
		Code:        p.Code,
		Purpose:     p.Purpose,
		MaxAttempts: p.MaxAttempts,
		ExpiresAt:   p.ExpiresAt,
		UpdatedAt:   e.now(),
	}
	if err := e.store.UpsertOtp(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Verify checks a submitted code against the live record of the expected
// purpose. A record issued for another purpose is reported as ErrNotFound and
// left untouched.
func (e *Engine) Verify(ctx context.Context, target string, channel entity.Channel, submitted string, purpose entity.Purpose) (*entity.Code, error) {
	c, err := e.store.FindLiveOtp(ctx, NormalizeTarget(channel, target), channel, e.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if c.Purpose != purpose {
		return nil, ErrNotFound
	}
	// The attempt is spent before the comparison so concurrent guesses cannot
	// share a stale counter.
	n, err := e.store.UseOtpAttempt(ctx, c.ID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if err := e.store.DeleteOtp(ctx, c.ID); err != nil {
			return nil, err
		}
		return nil, ErrTooManyAttempts
	}
	if subtle.ConstantTimeCompare([]byte(c.Code), []byte(strings.TrimSpace(submitted))) != 1 {
		remaining := c.MaxAttempts - n
		if remaining < 0 {
			remaining = 0
		}
		return nil, &MismatchError{Remaining: remaining}
	}
	ok, err := e.store.MarkOtpUsed(ctx, c.ID, c.Code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	c.Attempts = n
	c.Used = true
	return c, nil
}

// Cooldown returns how long the caller must wait before another code may be
// issued for (target, channel). Zero means a new code may be sent now.
func (e *Engine) Cooldown(ctx context.Context, target string, channel entity.Channel) (time.Duration, error) {
	now := e.now()
	c, err := e.store.FindLiveOtp(ctx, NormalizeTarget(channel, target), channel, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	if remaining := c.UpdatedAt.Add(ResendCooldown).Sub(now); remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}
