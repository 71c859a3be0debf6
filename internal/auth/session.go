package auth

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ovaphlow/pitchfork/service-auth/internal/account"
	"github.com/ovaphlow/pitchfork/service-auth/internal/token"
)

func tokenError(err error) *Error {
	if errors.Is(err, token.ErrExpired) {
		return newError(KindTokenExpired, msgTokenExpired)
	}
	return newError(KindTokenInvalid, msgTokenInvalid)
}

// RefreshAccessToken rotates a refresh token. The presented token must be
// live in the store; a token that was already rotated is refused.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (pair *TokenPair, err error) {
	ctx, span := s.startSpan(ctx, "RefreshAccessToken")
	defer func() {
		s.metrics.TokenRefresh(resultOf(err))
		endSpan(span, err)
	}()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, validation(msgTokenRequired)
	}
	claims, err := s.tokens.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		return nil, tokenError(err)
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, newError(KindTokenInvalid, msgTokenInvalid)
	}
	span.SetAttributes(attribute.Int64("auth.user_id", userID))

	now := s.now()
	rec, err := s.store.RefreshToken(ctx, refreshToken)
	if err != nil {
		if isNotFound(err) {
			return nil, newError(KindTokenInvalid, msgTokenInvalid)
		}
		return nil, internal("lookup refresh token", err)
	}
	if rec.UserID != userID || !rec.Live(now) {
		if rec.RevokedAt != nil {
			s.logger.Warnw("revoked refresh token presented", "user_id", userID, "token_id", rec.ID)
		}
		return nil, newError(KindTokenInvalid, msgTokenInvalid)
	}

	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, newError(KindTokenInvalid, msgTokenInvalid)
		}
		return nil, internal("lookup user", err)
	}
	if err := account.LoginGate(u); err != nil {
		return nil, gateError(err)
	}

	pair, next, err := s.issueSession(u, rec.Extended)
	if err != nil {
		return nil, err
	}
	if err := s.store.RotateRefreshToken(ctx, rec, next, now); err != nil {
		if errors.Is(err, ErrRefreshReplayed) {
			s.logger.Warnw("refresh token replayed", "user_id", userID, "token_id", rec.ID)
			return nil, newError(KindTokenInvalid, msgTokenInvalid)
		}
		return nil, internal("rotate refresh token", err)
	}
	return pair, nil
}

// Logout revokes one refresh token of the user, or all of them when token is
// empty. Unknown or already revoked tokens are a no-op.
func (s *Service) Logout(ctx context.Context, userID int64, refreshToken string) (err error) {
	ctx, span := s.startSpan(ctx, "Logout", attribute.Int64("auth.user_id", userID))
	defer func() { endSpan(span, err) }()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		_, err = s.revokeAll(ctx, userID)
		return err
	}
	revoked, err := s.store.RevokeRefreshToken(ctx, userID, refreshToken, s.now())
	if err != nil {
		return internal("revoke refresh token", err)
	}
	s.logger.Debugw("logout", "user_id", userID, "revoked", revoked)
	return nil
}

// LogoutAllDevices revokes every live refresh token of the user and returns
// how many were revoked.
func (s *Service) LogoutAllDevices(ctx context.Context, userID int64) (n int64, err error) {
	ctx, span := s.startSpan(ctx, "LogoutAllDevices", attribute.Int64("auth.user_id", userID))
	defer func() { endSpan(span, err) }()
	return s.revokeAll(ctx, userID)
}

func (s *Service) revokeAll(ctx context.Context, userID int64) (int64, error) {
	n, err := s.store.RevokeAllRefreshTokens(ctx, userID, s.now())
	if err != nil {
		return 0, internal("revoke refresh tokens", err)
	}
	s.logger.Infow("sessions revoked", "user_id", userID, "count", n)
	return n, nil
}

// Authenticate validates an access token and returns its claims.
func (s *Service) Authenticate(raw string) (*token.Claims, error) {
	claims, err := s.tokens.Verify(raw, token.KindAccess)
	if err != nil {
		return nil, tokenError(err)
	}
	return claims, nil
}
