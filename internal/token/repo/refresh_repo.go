package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth/internal/token/entity"
)

type RefreshRepo struct {
	db sqlx.ExtContext
}

func NewRefreshRepo(db sqlx.ExtContext) *RefreshRepo {
	return &RefreshRepo{db: db}
}

func (r *RefreshRepo) Save(ctx context.Context, t *entity.RefreshToken) error {
	const q = `INSERT INTO refresh_tokens (id, user_id, token, extended, expires_at, created_at)
		VALUES (:id, :user_id, :token, :extended, :expires_at, :created_at)`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, t)
	return err
}

// Get returns the record for a token string or sql.ErrNoRows.
func (r *RefreshRepo) Get(ctx context.Context, token string) (*entity.RefreshToken, error) {
	const q = `SELECT id, user_id, token, extended, expires_at, revoked_at, replaced_by, created_at
		FROM refresh_tokens WHERE token = $1`
	var t entity.RefreshToken
	if err := sqlx.GetContext(ctx, r.db, &t, q, token); err != nil {
		return nil, err
	}
	return &t, nil
}

// Revoke marks a single live token revoked. replacedBy may be nil. It reports
// whether a row changed, so a concurrent rotation of the same token loses.
func (r *RefreshRepo) Revoke(ctx context.Context, token string, userID int64, at time.Time, replacedBy *string) (bool, error) {
	const q = `UPDATE refresh_tokens SET revoked_at = $3, replaced_by = $4
		WHERE token = $1 AND user_id = $2 AND revoked_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, token, userID, at, replacedBy)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RevokeAll revokes every live token owned by userID and returns how many changed.
func (r *RefreshRepo) RevokeAll(ctx context.Context, userID int64, at time.Time) (int64, error) {
	const q = `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, userID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpired purges tokens that expired before cutoff.
func (r *RefreshRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
