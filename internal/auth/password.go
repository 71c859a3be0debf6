package auth

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ovaphlow/pitchfork/service-auth/internal/notify"
	otpentity "github.com/ovaphlow/pitchfork/service-auth/internal/otp/entity"
	"github.com/ovaphlow/pitchfork/service-auth/internal/password"
	userentity "github.com/ovaphlow/pitchfork/service-auth/internal/user/entity"
)

type ForgotPasswordInput struct {
	Identifier string `json:"identifier"`
}

type ResetPasswordInput struct {
	Identifier  string `json:"identifier"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ForgotPassword sends a password reset code on the identifier's channel.
// Unknown identifiers succeed silently; the cooldown still applies to known
// ones.
func (s *Service) ForgotPassword(ctx context.Context, in ForgotPasswordInput) (ack *OtpAck, err error) {
	ctx, span := s.startSpan(ctx, "ForgotPassword")
	defer func() { endSpan(span, err) }()

	identifier := strings.TrimSpace(in.Identifier)
	if identifier == "" {
		return nil, validation(msgIdentifierRequired)
	}
	channel := channelOf(identifier)
	u, err := s.userByIdentifier(ctx, identifier)
	if err != nil {
		if isNotFound(err) {
			s.logger.Debugw("password reset for unknown identifier", "channel", channel)
			return &OtpAck{Channel: channel, Delivered: true}, nil
		}
		return nil, internal("lookup user", err)
	}
	span.SetAttributes(attribute.Int64("auth.user_id", u.ID))
	return s.issueCode(ctx, u, channel, normalizeTarget(channel, identifier), otpentity.PurposePasswordReset)
}

// ResetPassword sets a new password with a password reset code and ends every
// session of the user.
func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) (err error) {
	ctx, span := s.startSpan(ctx, "ResetPassword")
	defer func() { endSpan(span, err) }()

	identifier := strings.TrimSpace(in.Identifier)
	if identifier == "" {
		return validation(msgIdentifierRequired)
	}
	if strings.TrimSpace(in.Code) == "" {
		return validation(msgCodeRequired)
	}
	if err := password.ValidateStrength(in.NewPassword); err != nil {
		return strengthError(err)
	}
	channel := channelOf(identifier)
	code, err := s.otp.Verify(ctx, normalizeTarget(channel, identifier), channel, in.Code, otpentity.PurposePasswordReset)
	if err != nil {
		return otpError(err)
	}
	var u *userentity.User
	if code.UserID != nil {
		u, err = s.store.UserByID(ctx, *code.UserID)
	} else {
		u, err = s.userByTarget(ctx, channel, code.Target)
	}
	if err != nil {
		if isNotFound(err) {
			return newError(KindNotFound, msgUserNotFound)
		}
		return internal("lookup user", err)
	}
	if err := s.setPassword(ctx, u, in.NewPassword); err != nil {
		return err
	}
	s.logger.Infow("password reset", "user_id", u.ID)
	return nil
}

// ChangePassword replaces the password of an authenticated user after
// checking the current one, then ends every session.
func (s *Service) ChangePassword(ctx context.Context, userID int64, in ChangePasswordInput) (err error) {
	ctx, span := s.startSpan(ctx, "ChangePassword", attribute.Int64("auth.user_id", userID))
	defer func() { endSpan(span, err) }()

	if in.CurrentPassword == "" || in.NewPassword == "" {
		return validation(msgCredentialsRequired)
	}
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return newError(KindNotFound, msgUserNotFound)
		}
		return internal("lookup user", err)
	}
	if !u.HasPassword() || !s.hasher.Verify(in.CurrentPassword, *u.PasswordHash) {
		return newError(KindInvalidCredentials, msgCurrentPasswordWrong)
	}
	if in.CurrentPassword == in.NewPassword {
		return validation(msgPasswordSame)
	}
	if err := password.ValidateStrength(in.NewPassword); err != nil {
		return strengthError(err)
	}
	if err := s.setPassword(ctx, u, in.NewPassword); err != nil {
		return err
	}
	s.logger.Infow("password changed", "user_id", u.ID)
	return nil
}

func (s *Service) setPassword(ctx context.Context, u *userentity.User, secret string) error {
	hash, algo, err := s.hasher.Hash(secret)
	if err != nil {
		return internal("hash password", err)
	}
	if err := s.store.UpdatePassword(ctx, u.ID, hash, algo, s.now()); err != nil {
		if isNotFound(err) {
			return newError(KindNotFound, msgUserNotFound)
		}
		return internal("update password", err)
	}
	s.sendEmail(ctx, u, s.userLanguage(ctx, u.ID), msgSubjectPasswordChanged, notify.TemplatePasswordChanged, nil)
	return nil
}
