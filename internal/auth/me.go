package auth

import (
	"context"
	"strings"
	"time"

	profileentity "github.com/ovaphlow/pitchfork/service-auth/internal/profile/entity"
	userentity "github.com/ovaphlow/pitchfork/service-auth/internal/user/entity"
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 100
)

// UserView is the public shape of the authenticated user.
type UserView struct {
	ID                 int64                         `json:"id"`
	Email              *string                       `json:"email,omitempty"`
	Phone              *string                       `json:"phone,omitempty"`
	Status             userentity.Status             `json:"status"`
	EmailVerified      bool                          `json:"email_verified"`
	PhoneVerified      bool                          `json:"phone_verified"`
	Role               string                        `json:"role"`
	RegistrationMethod userentity.RegistrationMethod `json:"registration_method"`
	LastLoginAt        *time.Time                    `json:"last_login_at,omitempty"`
	CreatedAt          time.Time                     `json:"created_at"`
	Profile            *profileentity.Profile        `json:"profile,omitempty"`
}

func (s *Service) Me(ctx context.Context, userID int64) (*UserView, error) {
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, newError(KindNotFound, msgUserNotFound)
		}
		return nil, internal("lookup user", err)
	}
	view := &UserView{
		ID:                 u.ID,
		Email:              u.Email,
		Phone:              u.Phone,
		Status:             u.Status,
		EmailVerified:      u.EmailVerified,
		PhoneVerified:      u.PhoneVerified,
		Role:               u.Role,
		RegistrationMethod: u.RegistrationMethod,
		LastLoginAt:        u.LastLoginAt,
		CreatedAt:          u.CreatedAt,
	}
	p, err := s.store.Profile(ctx, userID)
	switch {
	case err == nil:
		view.Profile = p
	case !isNotFound(err):
		return nil, internal("lookup profile", err)
	}
	return view, nil
}

// LoginHistory returns the most recent login attempts of the user, newest
// first.
func (s *Service) LoginHistory(ctx context.Context, userID int64, limit int) ([]userentity.LoginHistory, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	items, err := s.store.LoginHistory(ctx, userID, limit)
	if err != nil {
		return nil, internal("list login history", err)
	}
	if items == nil {
		items = []userentity.LoginHistory{}
	}
	return items, nil
}

// UpdateFCMToken stores the push notification token of the user's device.
func (s *Service) UpdateFCMToken(ctx context.Context, userID int64, fcmToken string) error {
	fcmToken = strings.TrimSpace(fcmToken)
	if fcmToken == "" {
		return validation(msgFCMTokenRequired)
	}
	if err := s.store.UpdateFCMToken(ctx, userID, fcmToken); err != nil {
		if isNotFound(err) {
			return newError(KindNotFound, msgUserNotFound)
		}
		return internal("update fcm token", err)
	}
	return nil
}
