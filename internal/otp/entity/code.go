package entity

import "time"

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

type Purpose string

const (
	PurposeVerification  Purpose = "verification"
	PurposePasswordReset Purpose = "password_reset"
)

// Code is the single live challenge for a (target, channel) pair.
type Code struct {
	ID          int64     `db:"id"`
	UserID      *int64    `db:"user_id"`
	Channel     Channel   `db:"channel"`
	Target      string    `db:"target"`
	Code        string    `db:"code"`
	Purpose     Purpose   `db:"purpose"`
	Attempts    int       `db:"attempts"`
	MaxAttempts int       `db:"max_attempts"`
	Used        bool      `db:"used"`
	ExpiresAt   time.Time `db:"expires_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Live reports whether the code can still be submitted at now.
func (c *Code) Live(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}
