package auth

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ovaphlow/pitchfork/service-auth/internal/otp"
	otpentity "github.com/ovaphlow/pitchfork/service-auth/internal/otp/entity"
	"github.com/ovaphlow/pitchfork/service-auth/internal/password"
	"github.com/ovaphlow/pitchfork/service-auth/internal/profile"
	profileentity "github.com/ovaphlow/pitchfork/service-auth/internal/profile/entity"
	roleentity "github.com/ovaphlow/pitchfork/service-auth/internal/role/entity"
	userentity "github.com/ovaphlow/pitchfork/service-auth/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-auth/pkg/utilities"
)

type RegisterInput struct {
	// Method is "email", "phone" or "google".
	Method    string `json:"method"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Language  string `json:"preferred_language"`
	Role      string `json:"role"`
	// ProviderToken is the Google ID token when Method is "google".
	ProviderToken string `json:"provider_token"`
	RememberMe    bool   `json:"remember_me"`
}

// RegisterResult holds either the pending verification (password methods) or
// a token pair (federated method).
type RegisterResult struct {
	UserID int64             `json:"user_id"`
	Status userentity.Status `json:"status"`
	Otp    *OtpAck           `json:"otp,omitempty"`
	Tokens *TokenPair        `json:"tokens,omitempty"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput, client ClientInfo) (res *RegisterResult, err error) {
	method := userentity.RegistrationMethod(strings.ToLower(strings.TrimSpace(in.Method)))
	ctx, span := s.startSpan(ctx, "Register", attribute.String("auth.method", string(method)))
	defer func() { endSpan(span, err) }()

	if method == userentity.RegisteredByGoogle {
		pair, u, err := s.federated(ctx, FederatedInput{
			Provider:   string(method),
			Token:      in.ProviderToken,
			FirstName:  in.FirstName,
			LastName:   in.LastName,
			Language:   in.Language,
			Role:       in.Role,
			RememberMe: in.RememberMe,
		}, client)
		if err != nil {
			return nil, err
		}
		return &RegisterResult{UserID: u.ID, Status: u.Status, Tokens: pair}, nil
	}

	email, phone := normalizeEmail(in.Email), normalizePhone(in.Phone)
	var channel otpentity.Channel
	switch method {
	case userentity.RegisteredByEmail:
		if email == "" {
			return nil, validation(msgIdentifierRequired)
		}
		channel = otpentity.ChannelEmail
	case userentity.RegisteredByPhone:
		if phone == "" {
			return nil, validation(msgIdentifierRequired)
		}
		channel = otpentity.ChannelPhone
	default:
		return nil, validation(msgInvalidChannel)
	}
	if email != "" && !validEmail(email) {
		return nil, validation(msgInvalidEmail)
	}
	if phone != "" && !validPhone(phone) {
		return nil, validation(msgInvalidPhone)
	}
	if err := password.ValidateStrength(in.Password); err != nil {
		return nil, strengthError(err)
	}
	roleName := defaultRole(strings.ToLower(strings.TrimSpace(in.Role)))
	if !roleentity.SelfAssignable(roleName) {
		return nil, validation(msgRoleNotAllowed)
	}

	if err := s.ensureAvailable(ctx, email, phone); err != nil {
		return nil, err
	}

	hash, algo, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, internal("hash password", err)
	}
	u, err := s.createAccount(ctx, newAccount{
		email:     email,
		phone:     phone,
		hash:      hash,
		algo:      algo,
		method:    method,
		role:      roleName,
		firstName: in.FirstName,
		lastName:  in.LastName,
		language:  in.Language,
	})
	if err != nil {
		return nil, err
	}

	target := email
	if channel == otpentity.ChannelPhone {
		target = phone
	}
	code, err := s.otp.Issue(ctx, otp.IssueParams{
		UserID:  &u.ID,
		Channel: channel,
		Target:  target,
		Purpose: otpentity.PurposeVerification,
	})
	if err != nil {
		return nil, internal("issue verification code", err)
	}
	s.metrics.OtpIssued(string(channel), string(otpentity.PurposeVerification))
	delivered := s.sendCode(ctx, code, Tag(in.Language))

	s.logger.Infow("account registered", "user_id", u.ID, "method", method, "role", roleName)
	return &RegisterResult{
		UserID: u.ID,
		Status: u.Status,
		Otp: &OtpAck{
			Channel:   channel,
			Delivered: delivered,
			ExpiresIn: int(otp.TTL.Seconds()),
		},
	}, nil
}

// ensureAvailable fails with Conflict when either identifier is registered.
func (s *Service) ensureAvailable(ctx context.Context, email, phone string) error {
	if email != "" {
		if _, err := s.store.UserByEmail(ctx, email); err == nil {
			return newError(KindConflict, msgEmailTaken)
		} else if !isNotFound(err) {
			return internal("lookup email", err)
		}
	}
	if phone != "" {
		if _, err := s.store.UserByPhone(ctx, phone); err == nil {
			return newError(KindConflict, msgPhoneTaken)
		} else if !isNotFound(err) {
			return internal("lookup phone", err)
		}
	}
	return nil
}

type newAccount struct {
	email, phone string
	hash, algo   string
	method       userentity.RegistrationMethod
	role         string
	firstName    string
	lastName     string
	language     string
	// federated accounts start active with a verified email.
	federated bool
}

// createAccount writes the user and its profile as one unit. The role must
// already be seeded.
func (s *Service) createAccount(ctx context.Context, a newAccount) (*userentity.User, error) {
	roleID, err := s.store.RoleIDByName(ctx, a.role)
	if err != nil {
		if isNotFound(err) {
			return nil, validation(msgRoleNotAllowed)
		}
		return nil, internal("lookup role", err)
	}
	now := s.now()
	u := &userentity.User{
		ID:                 utilities.NewSnowflakeID(),
		PasswordHash:       &a.hash,
		PasswordAlgo:       &a.algo,
		Status:             userentity.StatusPending,
		RoleID:             roleID,
		Role:               a.role,
		RegistrationMethod: a.method,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if a.email != "" {
		u.Email = &a.email
	}
	if a.phone != "" {
		u.Phone = &a.phone
	}
	if a.federated {
		u.EmailVerified = true
		u.Status = userentity.StatusActive
	}
	p := &profileentity.Profile{
		ID:                      utilities.NewSnowflakeID(),
		UserID:                  u.ID,
		FirstName:               profile.SanitizeName(a.firstName),
		LastName:                profile.SanitizeName(a.lastName),
		PreferredLanguage:       profile.NormalizeLanguage(a.language),
		NotificationPreferences: profileentity.DefaultPreferences(),
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := s.store.CreateAccount(ctx, u, p); err != nil {
		if errors.Is(err, ErrIdentifierTaken) {
			return nil, newError(KindConflict, msgIdentifierTaken)
		}
		return nil, internal("create account", err)
	}
	return u, nil
}
