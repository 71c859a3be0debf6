package entity

import "time"

// RefreshToken is a persisted session credential. A rotated token keeps the
// string of its successor in ReplacedBy.
type RefreshToken struct {
	ID         int64      `db:"id"`
	UserID     int64      `db:"user_id"`
	Token      string     `db:"token"`
	Extended   bool       `db:"extended"`
	ExpiresAt  time.Time  `db:"expires_at"`
	RevokedAt  *time.Time `db:"revoked_at"`
	ReplacedBy *string    `db:"replaced_by"`
	CreatedAt  time.Time  `db:"created_at"`
}

// Live reports whether the token is unrevoked and unexpired at now.
func (t *RefreshToken) Live(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
