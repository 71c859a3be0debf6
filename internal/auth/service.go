package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/ovaphlow/pitchfork/service-auth/internal/notify"
	"github.com/ovaphlow/pitchfork/service-auth/internal/otp"
	otpentity "github.com/ovaphlow/pitchfork/service-auth/internal/otp/entity"
	"github.com/ovaphlow/pitchfork/service-auth/internal/password"
	"github.com/ovaphlow/pitchfork/service-auth/internal/provider"
	roleentity "github.com/ovaphlow/pitchfork/service-auth/internal/role/entity"
	"github.com/ovaphlow/pitchfork/service-auth/internal/token"
	tokenentity "github.com/ovaphlow/pitchfork/service-auth/internal/token/entity"
	userentity "github.com/ovaphlow/pitchfork/service-auth/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-auth/pkg/utilities"
)

// Recorder receives business events for metrics.
type Recorder interface {
	LoginResult(method, result string)
	OtpIssued(channel, purpose string)
	OtpVerified(result string)
	TokenRefresh(result string)
	NotificationFailed(channel string)
}

type nopRecorder struct{}

func (nopRecorder) LoginResult(string, string) {}
func (nopRecorder) OtpIssued(string, string) {}
func (nopRecorder) OtpVerified(string) {}
func (nopRecorder) TokenRefresh(string) {}
func (nopRecorder) NotificationFailed(string) {}

type Config struct {
	AppName       string
	NotifyTimeout time.Duration
}

type Deps struct {
	Store    Store
	Hasher   password.Hasher
	Tokens   *token.Issuer
	Notifier notify.Dispatcher
	Verifier provider.Verifier
	Metrics  Recorder
	Tracer   trace.Tracer
	Logger   *zap.SugaredLogger
	Now      func() time.Time
}

// Service orchestrates registration, login, sessions, verification and
// password flows. It keeps no state between calls.
type Service struct {
	store    Store
	hasher   password.Hasher
	tokens   *token.Issuer
	otp      *otp.Engine
	notifier notify.Dispatcher
	verifier provider.Verifier
	metrics  Recorder
	tracer   trace.Tracer
	logger   *zap.SugaredLogger
	now      func() time.Time
	cfg      Config
}

func NewService(d Deps, cfg Config) (*Service, error) {
	if d.Store == nil || d.Hasher == nil || d.Tokens == nil {
		return nil, errors.New("auth: store, hasher and token issuer are required")
	}
	if d.Notifier == nil {
		d.Notifier = notify.Multi{}
	}
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
	if d.Tracer == nil {
		d.Tracer = otel.Tracer("github.com/ovaphlow/pitchfork/service-auth/internal/auth")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if cfg.AppName == "" {
		cfg.AppName = "Pitchfork"
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	return &Service{
		store:    d.Store,
		hasher:   d.Hasher,
		tokens:   d.Tokens,
		otp:      otp.NewEngine(d.Store, d.Now),
		notifier: d.Notifier,
		verifier: d.Verifier,
		metrics:  d.Metrics,
		tracer:   d.Tracer,
		logger:   d.Logger,
		now:      d.Now,
		cfg:      cfg,
	}, nil
}

// ClientInfo describes the caller of a login for the audit trail.
type ClientInfo struct {
	IP        string
	UserAgent string
	Device    userentity.DeviceInfo
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// OtpAck acknowledges that a code was issued. Delivered is false when the
// transport failed; the code is stored either way.
type OtpAck struct {
	Channel   otpentity.Channel `json:"channel"`
	Delivered bool              `json:"delivered"`
	ExpiresIn int               `json:"expires_in"`
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "auth."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	span.End()
}

var phonePattern = regexp.MustCompile(`^\+?[0-9]{8,15}$`)

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func normalizePhone(s string) string {
	return strings.NewReplacer(" ", "", "-", "", ".", "").Replace(strings.TrimSpace(s))
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func validPhone(s string) bool { return phonePattern.MatchString(s) }

// channelOf classifies an identifier: anything with '@' is an email.
func channelOf(identifier string) otpentity.Channel {
	if strings.Contains(identifier, "@") {
		return otpentity.ChannelEmail
	}
	return otpentity.ChannelPhone
}

func parseChannel(s string) (otpentity.Channel, bool) {
	switch otpentity.Channel(strings.ToLower(strings.TrimSpace(s))) {
	case otpentity.ChannelEmail:
		return otpentity.ChannelEmail, true
	case otpentity.ChannelPhone:
		return otpentity.ChannelPhone, true
	}
	return "", false
}

func (s *Service) userByIdentifier(ctx context.Context, identifier string) (*userentity.User, error) {
	if channelOf(identifier) == otpentity.ChannelEmail {
		return s.store.UserByEmail(ctx, normalizeEmail(identifier))
	}
	return s.store.UserByPhone(ctx, normalizePhone(identifier))
}

func normalizeTarget(channel otpentity.Channel, target string) string {
	if channel == otpentity.ChannelEmail {
		return normalizeEmail(target)
	}
	return normalizePhone(target)
}

func (s *Service) userByTarget(ctx context.Context, channel otpentity.Channel, target string) (*userentity.User, error) {
	if channel == otpentity.ChannelEmail {
		return s.store.UserByEmail(ctx, normalizeEmail(target))
	}
	return s.store.UserByPhone(ctx, normalizePhone(target))
}

func strengthError(err error) *Error {
	switch {
	case errors.Is(err, password.ErrTooShort):
		return validation(msgPasswordTooShort)
	case errors.Is(err, password.ErrTooLong):
		return validation(msgPasswordTooLong)
	case errors.Is(err, password.ErrNoUpper):
		return validation(msgPasswordNoUpper)
	case errors.Is(err, password.ErrNoLower):
		return validation(msgPasswordNoLower)
	case errors.Is(err, password.ErrNoDigit):
		return validation(msgPasswordNoDigit)
	default:
		return validation(msgPasswordNoSpecial)
	}
}

// issueSession signs a token pair and builds the refresh record to persist.
func (s *Service) issueSession(u *userentity.User, extended bool) (*TokenPair, *tokenentity.RefreshToken, error) {
	access, _, err := s.tokens.IssueAccess(u.ID, u.Role)
	if err != nil {
		return nil, nil, internal("issue access token", err)
	}
	refresh, exp, err := s.tokens.IssueRefresh(u.ID, extended)
	if err != nil {
		return nil, nil, internal("issue refresh token", err)
	}
	rec := &tokenentity.RefreshToken{
		ID:        utilities.NewSnowflakeID(),
		UserID:    u.ID,
		Token:     refresh,
		Extended:  extended,
		ExpiresAt: exp,
		CreatedAt: s.now(),
	}
	pair := &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(token.AccessTTL.Seconds()),
		TokenType:    "Bearer",
	}
	return pair, rec, nil
}

func (s *Service) history(userID *int64, client ClientInfo, success bool, reason string) *userentity.LoginHistory {
	device, _ := json.Marshal(client.Device)
	h := &userentity.LoginHistory{
		ID:         utilities.NewSnowflakeID(),
		UserID:     userID,
		IPAddress:  client.IP,
		UserAgent:  client.UserAgent,
		DeviceInfo: device,
		Success:    success,
		CreatedAt:  s.now(),
	}
	if reason != "" {
		h.FailureReason = &reason
	}
	return h
}

// recordFailure appends a failed login to the audit trail. Storage errors are
// logged and do not change the outcome of the login.
func (s *Service) recordFailure(ctx context.Context, userID *int64, client ClientInfo, reason string) {
	if err := s.store.AppendLoginHistory(ctx, s.history(userID, client, false, reason)); err != nil {
		s.logger.Warnw("append login history failed", "user_id", userID, "reason", reason, "err", err)
	}
}

// language returns the user's preferred language, defaulting to French.
func (s *Service) userLanguage(ctx context.Context, userID int64) language.Tag {
	p, err := s.store.Profile(ctx, userID)
	if err != nil {
		return language.French
	}
	return Tag(p.PreferredLanguage)
}

func (s *Service) firstName(ctx context.Context, userID int64) string {
	p, err := s.store.Profile(ctx, userID)
	if err != nil {
		return ""
	}
	return p.FirstName
}

// deliver runs one notification with a bounded timeout detached from the
// caller's cancellation. Failures are logged and reported as false.
func (s *Service) deliver(ctx context.Context, channel string, send func(context.Context) error) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	defer cancel()
	if err := send(ctx); err != nil {
		s.metrics.NotificationFailed(channel)
		s.logger.Warnw("notification failed", "channel", channel, "err", err)
		return false
	}
	return true
}

// sendCode delivers an issued OTP on its own channel.
func (s *Service) sendCode(ctx context.Context, c *otpentity.Code, tag language.Tag) bool {
	minutes := int(otp.TTL.Minutes())
	if c.Channel == otpentity.ChannelPhone {
		key := msgSMSVerification
		if c.Purpose == otpentity.PurposePasswordReset {
			key = msgSMSPasswordReset
		}
		text := Localize(tag, key, s.cfg.AppName, c.Code, minutes)
		return s.deliver(ctx, "sms", func(ctx context.Context) error {
			return s.notifier.SendSMS(ctx, c.Target, text)
		})
	}
	subject, tmpl := msgSubjectVerification, notify.TemplateVerificationCode
	if c.Purpose == otpentity.PurposePasswordReset {
		subject, tmpl = msgSubjectPasswordReset, notify.TemplatePasswordReset
	}
	msg := notify.Email{
		To:       c.Target,
		Subject:  Localize(tag, subject, s.cfg.AppName),
		Template: tmpl,
		Lang:     LangCode(tag),
		Data:     map[string]any{"Code": c.Code, "ExpiresInMinutes": minutes, "AppName": s.cfg.AppName},
	}
	return s.deliver(ctx, "email", func(ctx context.Context) error {
		return s.notifier.SendEmail(ctx, msg)
	})
}

// sendEmail delivers a templated email when the user has an address.
func (s *Service) sendEmail(ctx context.Context, u *userentity.User, tag language.Tag, subjectKey, tmpl string, data map[string]any) {
	if u.Email == nil || *u.Email == "" {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["AppName"] = s.cfg.AppName
	msg := notify.Email{
		To:       *u.Email,
		Subject:  Localize(tag, subjectKey, s.cfg.AppName),
		Template: tmpl,
		Lang:     LangCode(tag),
		Data:     data,
	}
	s.deliver(ctx, "email", func(ctx context.Context) error {
		return s.notifier.SendEmail(ctx, msg)
	})
}

func defaultRole(name string) string {
	if name == "" {
		return roleentity.DefaultRole
	}
	return name
}
