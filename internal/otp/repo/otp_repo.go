package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth/internal/otp/entity"
)

type OtpRepo struct {
	db sqlx.ExtContext
}

func NewOtpRepo(db sqlx.ExtContext) *OtpRepo {
	return &OtpRepo{db: db}
}

// Upsert overwrites the record for (target, channel) in one statement,
// resetting attempts and used.
func (r *OtpRepo) Upsert(ctx context.Context, c *entity.Code) error {
	const q = `INSERT INTO otp_codes (user_id, channel, target, code, purpose, attempts, max_attempts, used, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, false, $7, $8, $8)
		ON CONFLICT (target, channel) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			code = EXCLUDED.code,
			purpose = EXCLUDED.purpose,
			attempts = 0,
			max_attempts = EXCLUDED.max_attempts,
			used = false,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id`
	return sqlx.GetContext(ctx, r.db, &c.ID, q,
		c.UserID, c.Channel, c.Target, c.Code, c.Purpose, c.MaxAttempts, c.ExpiresAt, c.UpdatedAt)
}

// FindLive returns the unused, unexpired record or sql.ErrNoRows.
func (r *OtpRepo) FindLive(ctx context.Context, target string, channel entity.Channel, now time.Time) (*entity.Code, error) {
	const q = `SELECT id, user_id, channel, target, code, purpose, attempts, max_attempts, used, expires_at, updated_at
		FROM otp_codes WHERE target = $1 AND channel = $2 AND used = false AND expires_at > $3`
	var c entity.Code
	if err := sqlx.GetContext(ctx, r.db, &c, q, target, channel, now); err != nil {
		return nil, err
	}
	return &c, nil
}

// UseAttempt bumps the counter while it is below max_attempts and returns the
// new value. A record at its cap yields sql.ErrNoRows.
func (r *OtpRepo) UseAttempt(ctx context.Context, id int64) (int, error) {
	const q = `UPDATE otp_codes SET attempts = attempts + 1
		WHERE id = $1 AND attempts < max_attempts AND used = false
		RETURNING attempts`
	var n int
	if err := sqlx.GetContext(ctx, r.db, &n, q, id); err != nil {
		return 0, err
	}
	return n, nil
}

// MarkUsed consumes the code. It reports false when another request already
// did or the record was reissued with a different code.
func (r *OtpRepo) MarkUsed(ctx context.Context, id int64, code string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE otp_codes SET used = true WHERE id = $1 AND code = $2 AND used = false`, id, code)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *OtpRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM otp_codes WHERE id = $1`, id)
	return err
}

// DeleteStale purges used codes and codes that expired before cutoff.
func (r *OtpRepo) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM otp_codes WHERE used = true OR expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
