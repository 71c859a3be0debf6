package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ovaphlow/pitchfork/service-auth/internal/account"
	otpentity "github.com/ovaphlow/pitchfork/service-auth/internal/otp/entity"
	"github.com/ovaphlow/pitchfork/service-auth/internal/password"
	"github.com/ovaphlow/pitchfork/service-auth/internal/provider"
	roleentity "github.com/ovaphlow/pitchfork/service-auth/internal/role/entity"
	userentity "github.com/ovaphlow/pitchfork/service-auth/internal/user/entity"
)

// Failure reasons recorded in login history.
const (
	reasonUnknownIdentifier = "unknown_identifier"
	reasonLocked            = "account_locked"
	reasonNoPassword        = "no_password_method"
	reasonWrongPassword     = "wrong_password"
	reasonBlocked           = "account_blocked"
	reasonUnverified        = "account_unverified"
)

type LoginInput struct {
	// Identifier is an email address or a phone number.
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

func isNotFound(err error) bool { return errors.Is(err, sql.ErrNoRows) }

// gateError converts an account.LoginGate failure.
func gateError(err error) *Error {
	switch {
	case errors.Is(err, account.ErrSuspended):
		return newError(KindAccountBlocked, msgAccountSuspended)
	case errors.Is(err, account.ErrDeleted):
		return newError(KindAccountBlocked, msgAccountDeleted)
	case errors.Is(err, account.ErrPendingVerification):
		return newError(KindAccountUnverified, msgAccountUnverified)
	default:
		return internal("login gate", err)
	}
}

func gateReason(e *Error) string {
	if e.Kind == KindAccountUnverified {
		return reasonUnverified
	}
	return reasonBlocked
}

// Login authenticates with a password. The lock check runs before the
// password compare, and unknown identifiers fail exactly like wrong passwords.
func (s *Service) Login(ctx context.Context, in LoginInput, client ClientInfo) (pair *TokenPair, err error) {
	ctx, span := s.startSpan(ctx, "Login")
	defer func() {
		s.metrics.LoginResult("password", resultOf(err))
		endSpan(span, err)
	}()

	identifier := strings.TrimSpace(in.Identifier)
	if identifier == "" || in.Password == "" {
		return nil, validation(msgCredentialsRequired)
	}
	u, err := s.userByIdentifier(ctx, identifier)
	if err != nil {
		if isNotFound(err) {
			s.recordFailure(ctx, nil, client, reasonUnknownIdentifier)
			return nil, newError(KindInvalidCredentials, msgInvalidCredentials)
		}
		return nil, internal("lookup user", err)
	}
	span.SetAttributes(attribute.Int64("auth.user_id", u.ID))
	now := s.now()

	if wait := account.LockRemaining(u, now); wait > 0 {
		s.recordFailure(ctx, &u.ID, client, reasonLocked)
		e := newError(KindAccountLocked, msgAccountLocked, account.CeilMinutes(wait))
		e.RetryAfter = wait
		return nil, e
	}

	if !u.HasPassword() {
		s.recordFailure(ctx, &u.ID, client, reasonNoPassword)
		return nil, newError(KindInvalidCredentials, msgInvalidCredentials)
	}

	if !s.hasher.Verify(in.Password, *u.PasswordHash) {
		return nil, s.failPassword(ctx, u, client)
	}

	if err := account.LoginGate(u); err != nil {
		e := gateError(err)
		s.recordFailure(ctx, &u.ID, client, gateReason(e))
		return nil, e
	}

	pair, err = s.startSession(ctx, u, in.RememberMe, client, true)
	if err != nil {
		return nil, err
	}
	s.logger.Infow("login succeeded", "user_id", u.ID, "method", "password")
	return pair, nil
}

// failPassword counts a wrong password and locks the account at the
// threshold.
func (s *Service) failPassword(ctx context.Context, u *userentity.User, client ClientInfo) error {
	now := s.now()
	attempts, err := s.store.IncrementLoginAttempts(ctx, u.ID, now)
	if err != nil {
		return internal("increment login attempts", err)
	}
	s.recordFailure(ctx, &u.ID, client, reasonWrongPassword)
	if account.ShouldLock(attempts) {
		if err := s.store.LockUser(ctx, u.ID, now.Add(account.LockDuration)); err != nil {
			return internal("lock user", err)
		}
		s.logger.Warnw("account locked", "user_id", u.ID, "attempts", attempts)
		e := newError(KindAccountLocked, msgAccountLockedNow, account.CeilMinutes(account.LockDuration))
		e.RetryAfter = account.LockDuration
		return e
	}
	remaining := account.RemainingAttempts(attempts)
	e := newError(KindInvalidCredentials, msgInvalidCredentialsRemain, remaining)
	e.Remaining = &remaining
	return e
}

// lockedError reports a lock set by a concurrent failure after u was read.
func (s *Service) lockedError(ctx context.Context, userID int64) error {
	wait := account.LockDuration
	if u, err := s.store.UserByID(ctx, userID); err == nil {
		if w := account.LockRemaining(u, s.now()); w > 0 {
			wait = w
		}
	}
	e := newError(KindAccountLocked, msgAccountLocked, account.CeilMinutes(wait))
	e.RetryAfter = wait
	return e
}

// startSession issues a token pair and persists it with the success history
// entry in one unit.
func (s *Service) startSession(ctx context.Context, u *userentity.User, extended bool, client ClientInfo, resetLockout bool) (*TokenPair, error) {
	pair, refresh, err := s.issueSession(u, extended)
	if err != nil {
		return nil, err
	}
	rec := LoginRecord{
		UserID:       u.ID,
		At:           s.now(),
		History:      s.history(&u.ID, client, true, ""),
		Refresh:      refresh,
		ResetLockout: resetLockout,
	}
	if err := s.store.CompleteLogin(ctx, rec); err != nil {
		if errors.Is(err, ErrAccountLocked) {
			return nil, s.lockedError(ctx, u.ID)
		}
		return nil, internal("complete login", err)
	}
	return pair, nil
}

type FederatedInput struct {
	// Provider is the identity provider name; only "google" is supported.
	Provider   string `json:"provider"`
	Token      string `json:"token"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Language   string `json:"preferred_language"`
	Role       string `json:"role"`
	RememberMe bool   `json:"remember_me"`
}

// LoginWithFederatedProvider verifies a provider token, finds or creates the
// matching account and always issues a fresh pair. Lockout does not apply.
func (s *Service) LoginWithFederatedProvider(ctx context.Context, in FederatedInput, client ClientInfo) (pair *TokenPair, err error) {
	ctx, span := s.startSpan(ctx, "LoginWithFederatedProvider", attribute.String("auth.provider", in.Provider))
	defer func() { endSpan(span, err) }()
	pair, _, err = s.federated(ctx, in, client)
	return pair, err
}

func (s *Service) federated(ctx context.Context, in FederatedInput, client ClientInfo) (pair *TokenPair, u *userentity.User, err error) {
	defer func() { s.metrics.LoginResult("google", resultOf(err)) }()

	if !strings.EqualFold(strings.TrimSpace(in.Provider), string(userentity.RegisteredByGoogle)) || s.verifier == nil {
		return nil, nil, validation(msgProviderUnsupported)
	}
	if strings.TrimSpace(in.Token) == "" {
		return nil, nil, validation(msgTokenRequired)
	}
	id, err := s.verifier.Verify(ctx, in.Token)
	if err != nil {
		if errors.Is(err, provider.ErrInvalidProviderToken) {
			return nil, nil, newError(KindTokenInvalid, msgProviderTokenInvalid)
		}
		return nil, nil, internal("verify provider token", err)
	}
	email := normalizeEmail(id.Email)

	u, err = s.store.UserByEmail(ctx, email)
	switch {
	case err == nil:
		if u, err = s.reconcileFederated(ctx, u); err != nil {
			return nil, nil, err
		}
	case isNotFound(err):
		if u, err = s.createFederated(ctx, email, id, in); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, internal("lookup user", err)
	}

	if err := account.LoginGate(u); err != nil {
		e := gateError(err)
		s.recordFailure(ctx, &u.ID, client, gateReason(e))
		return nil, nil, e
	}
	pair, err = s.startSession(ctx, u, in.RememberMe, client, false)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Infow("login succeeded", "user_id", u.ID, "method", "google")
	return pair, u, nil
}

// reconcileFederated trusts the provider's verified email for an existing
// account.
func (s *Service) reconcileFederated(ctx context.Context, u *userentity.User) (*userentity.User, error) {
	if u.EmailVerified || u.Status == userentity.StatusSuspended || u.Status == userentity.StatusDeleted {
		return u, nil
	}
	updated, err := s.store.MarkVerified(ctx, u.ID, otpentity.ChannelEmail)
	if err != nil {
		return nil, internal("mark email verified", err)
	}
	return updated, nil
}

func (s *Service) createFederated(ctx context.Context, email string, id *provider.Identity, in FederatedInput) (*userentity.User, error) {
	roleName := defaultRole(strings.ToLower(strings.TrimSpace(in.Role)))
	if !roleentity.SelfAssignable(roleName) {
		return nil, validation(msgRoleNotAllowed)
	}
	secret, err := password.GenerateRandomSecret()
	if err != nil {
		return nil, internal("generate secret", err)
	}
	hash, _, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, internal("hash secret", err)
	}
	first, last := id.FirstName, id.LastName
	if first == "" {
		first = in.FirstName
	}
	if last == "" {
		last = in.LastName
	}
	u, err := s.createAccount(ctx, newAccount{
		email:     email,
		hash:      hash,
		algo:      userentity.FederatedAlgo,
		method:    userentity.RegisteredByGoogle,
		role:      roleName,
		firstName: first,
		lastName:  last,
		language:  in.Language,
		federated: true,
	})
	if err == nil {
		s.logger.Infow("account registered", "user_id", u.ID, "method", "google", "role", roleName)
		return u, nil
	}
	// A concurrent first login may have created the row.
	if KindOf(err) == KindConflict {
		existing, lookupErr := s.store.UserByEmail(ctx, email)
		if lookupErr == nil {
			return s.reconcileFederated(ctx, existing)
		}
	}
	return nil, err
}

func resultOf(err error) string {
	if err == nil {
		return "success"
	}
	return string(KindOf(err))
}
