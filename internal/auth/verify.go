package auth

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ovaphlow/pitchfork/service-auth/internal/notify"
	"github.com/ovaphlow/pitchfork/service-auth/internal/otp"
	otpentity "github.com/ovaphlow/pitchfork/service-auth/internal/otp/entity"
	userentity "github.com/ovaphlow/pitchfork/service-auth/internal/user/entity"
)

type VerifyOtpInput struct {
	Target  string `json:"target"`
	Channel string `json:"channel"`
	Code    string `json:"code"`
}

type VerifyResult struct {
	UserID        int64             `json:"user_id"`
	Status        userentity.Status `json:"status"`
	EmailVerified bool              `json:"email_verified"`
	PhoneVerified bool              `json:"phone_verified"`
}

type ResendOtpInput struct {
	Target  string `json:"target"`
	Channel string `json:"channel"`
}

func otpError(err error) error {
	var mismatch *otp.MismatchError
	switch {
	case errors.Is(err, otp.ErrNotFound):
		return newError(KindOtpInvalid, msgOtpInvalid)
	case errors.Is(err, otp.ErrTooManyAttempts):
		return newError(KindOtpExhausted, msgOtpExhausted)
	case errors.As(err, &mismatch):
		remaining := mismatch.Remaining
		e := newError(KindOtpMismatch, msgOtpMismatch, remaining)
		e.Remaining = &remaining
		return e
	default:
		return internal("verify otp", err)
	}
}

func cooldownError(wait time.Duration) *Error {
	e := newError(KindRateLimited, msgOtpCooldown, int(math.Ceil(wait.Seconds())))
	e.RetryAfter = wait
	return e
}

func (in VerifyOtpInput) validate() (otpentity.Channel, string, error) {
	channel, ok := parseChannel(in.Channel)
	if !ok {
		return "", "", validation(msgInvalidChannel)
	}
	target := normalizeTarget(channel, in.Target)
	if target == "" {
		return "", "", validation(msgIdentifierRequired)
	}
	if strings.TrimSpace(in.Code) == "" {
		return "", "", validation(msgCodeRequired)
	}
	return channel, target, nil
}

// VerifyOtp consumes a verification code and marks the channel verified,
// activating the account once its required channel is proven.
func (s *Service) VerifyOtp(ctx context.Context, in VerifyOtpInput) (res *VerifyResult, err error) {
	ctx, span := s.startSpan(ctx, "VerifyOtp", attribute.String("auth.channel", in.Channel))
	defer func() {
		s.metrics.OtpVerified(resultOf(err))
		endSpan(span, err)
	}()

	channel, target, err := in.validate()
	if err != nil {
		return nil, err
	}
	code, err := s.otp.Verify(ctx, target, channel, in.Code, otpentity.PurposeVerification)
	if err != nil {
		return nil, otpError(err)
	}

	var before *userentity.User
	if code.UserID != nil {
		before, err = s.store.UserByID(ctx, *code.UserID)
	} else {
		before, err = s.userByTarget(ctx, channel, code.Target)
	}
	if err != nil {
		if isNotFound(err) {
			return nil, newError(KindNotFound, msgUserNotFound)
		}
		return nil, internal("lookup user", err)
	}
	u, err := s.store.MarkVerified(ctx, before.ID, channel)
	if err != nil {
		return nil, internal("mark verified", err)
	}
	if before.Status == userentity.StatusPending && u.Status == userentity.StatusActive {
		s.logger.Infow("account activated", "user_id", u.ID, "channel", channel)
		s.sendEmail(ctx, u, s.userLanguage(ctx, u.ID), msgSubjectWelcome, notify.TemplateWelcome,
			map[string]any{"FirstName": s.firstName(ctx, u.ID)})
	}
	return &VerifyResult{
		UserID:        u.ID,
		Status:        u.Status,
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
	}, nil
}

// ResendOtp issues a fresh verification code for an unverified channel,
// subject to the resend cooldown.
func (s *Service) ResendOtp(ctx context.Context, in ResendOtpInput) (ack *OtpAck, err error) {
	ctx, span := s.startSpan(ctx, "ResendOtp", attribute.String("auth.channel", in.Channel))
	defer func() { endSpan(span, err) }()

	channel, ok := parseChannel(in.Channel)
	if !ok {
		return nil, validation(msgInvalidChannel)
	}
	target := normalizeTarget(channel, in.Target)
	if target == "" {
		return nil, validation(msgIdentifierRequired)
	}
	u, err := s.userByTarget(ctx, channel, target)
	if err != nil {
		if isNotFound(err) {
			return nil, newError(KindNotFound, msgUserNotFound)
		}
		return nil, internal("lookup user", err)
	}
	if (channel == otpentity.ChannelEmail && u.EmailVerified) || (channel == otpentity.ChannelPhone && u.PhoneVerified) {
		return nil, validation(msgAlreadyVerified)
	}
	return s.issueCode(ctx, u, channel, target, otpentity.PurposeVerification)
}

// issueCode applies the cooldown, stores a fresh code and sends it.
func (s *Service) issueCode(ctx context.Context, u *userentity.User, channel otpentity.Channel, target string, purpose otpentity.Purpose) (*OtpAck, error) {
	wait, err := s.otp.Cooldown(ctx, target, channel)
	if err != nil {
		return nil, internal("otp cooldown", err)
	}
	if wait > 0 {
		return nil, cooldownError(wait)
	}
	code, err := s.otp.Issue(ctx, otp.IssueParams{
		UserID:  &u.ID,
		Channel: channel,
		Target:  target,
		Purpose: purpose,
	})
	if err != nil {
		return nil, internal("issue otp", err)
	}
	s.metrics.OtpIssued(string(channel), string(purpose))
	delivered := s.sendCode(ctx, code, s.userLanguage(ctx, u.ID))
	return &OtpAck{Channel: channel, Delivered: delivered, ExpiresIn: int(otp.TTL.Seconds())}, nil
}
