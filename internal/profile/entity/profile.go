package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Preferences is stored as JSONB in user_profiles.notification_preferences.
type Preferences struct {
	Email     bool `json:"email"`
	SMS       bool `json:"sms"`
	Push      bool `json:"push"`
	Marketing bool `json:"marketing"`
}

func DefaultPreferences() Preferences {
	return Preferences{Email: true, SMS: true, Push: true}
}

func (p Preferences) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *Preferences) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = DefaultPreferences()
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("preferences: unsupported type %T", src)
	}
}

// Profile is the one-per-user row holding display and notification data.
type Profile struct {
	ID                      int64       `db:"id" json:"-"`
	UserID                  int64       `db:"user_id" json:"user_id"`
	FirstName               string      `db:"first_name" json:"first_name"`
	LastName                string      `db:"last_name" json:"last_name"`
	PreferredLanguage       string      `db:"preferred_language" json:"preferred_language"`
	NotificationPreferences Preferences `db:"notification_preferences" json:"notification_preferences"`
	FCMToken                *string     `db:"fcm_token" json:"-"`
	CreatedAt               time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time   `db:"updated_at" json:"updated_at"`
}
