package entity

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending_verification"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

type RegistrationMethod string

const (
	RegisteredByEmail  RegistrationMethod = "email"
	RegisteredByPhone  RegistrationMethod = "phone"
	RegisteredByGoogle RegistrationMethod = "google"
)

// FederatedAlgo marks a password hash that was generated for a provider-created
// account. It never authenticates a password login.
const FederatedAlgo = "federated"

// User represents an account row in the `users` table joined with its role name.
type User struct {
	ID                 int64              `db:"id"`
	Email              *string            `db:"email"`
	Phone              *string            `db:"phone"`
	PasswordHash       *string            `db:"password_hash"`
	PasswordAlgo       *string            `db:"password_algo"`
	Status             Status             `db:"status"`
	EmailVerified      bool               `db:"email_verified"`
	PhoneVerified      bool               `db:"phone_verified"`
	LoginAttempts      int                `db:"login_attempts"`
	LockedUntil        *time.Time         `db:"locked_until"`
	LastLoginAt        *time.Time         `db:"last_login_at"`
	RoleID             int64              `db:"role_id"`
	Role               string             `db:"role"`
	RegistrationMethod RegistrationMethod `db:"registration_method"`
	CreatedAt          time.Time          `db:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at"`
}

// HasPassword reports whether the account can authenticate with a password.
func (u *User) HasPassword() bool {
	if u.PasswordHash == nil || *u.PasswordHash == "" {
		return false
	}
	return u.PasswordAlgo == nil || *u.PasswordAlgo != FederatedAlgo
}

// DeviceInfo is stored as JSONB on login history rows.
type DeviceInfo struct {
	Platform   string `json:"platform,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
}

// LoginHistory is an append-only audit row. UserID is nil for unknown identifiers.
type LoginHistory struct {
	ID            int64           `db:"id" json:"id"`
	UserID        *int64          `db:"user_id" json:"user_id,omitempty"`
	IPAddress     string          `db:"ip_address" json:"ip_address"`
	UserAgent     string          `db:"user_agent" json:"user_agent"`
	DeviceInfo    json.RawMessage `db:"device_info" json:"device_info"`
	Success       bool            `db:"success" json:"success"`
	FailureReason *string         `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}
