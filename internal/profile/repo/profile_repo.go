package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth/internal/profile/entity"
)

type ProfileRepo struct {
	db sqlx.ExtContext
}

func NewProfileRepo(db sqlx.ExtContext) *ProfileRepo {
	return &ProfileRepo{db: db}
}

func (r *ProfileRepo) Create(ctx context.Context, p *entity.Profile) error {
	const q = `INSERT INTO user_profiles (id, user_id, first_name, last_name, preferred_language,
		notification_preferences, created_at, updated_at)
		VALUES (:id, :user_id, :first_name, :last_name, :preferred_language,
		:notification_preferences, :created_at, :updated_at)`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, p)
	return err
}

// GetByUserID returns the profile or sql.ErrNoRows.
func (r *ProfileRepo) GetByUserID(ctx context.Context, userID int64) (*entity.Profile, error) {
	const q = `SELECT id, user_id, first_name, last_name, preferred_language, notification_preferences,
		fcm_token, created_at, updated_at FROM user_profiles WHERE user_id = $1`
	var p entity.Profile
	if err := sqlx.GetContext(ctx, r.db, &p, q, userID); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateFCMToken stores the push token. Returns sql.ErrNoRows when the user has no profile.
func (r *ProfileRepo) UpdateFCMToken(ctx context.Context, userID int64, token string) error {
	const q = `UPDATE user_profiles SET fcm_token = $2, updated_at = NOW() WHERE user_id = $1 RETURNING id`
	var id int64
	return sqlx.GetContext(ctx, r.db, &id, q, userID, token)
}
