package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth/internal/user/entity"
)

// UserRepo provides data access for the users table. It runs against either the
// pool or an open transaction.
type UserRepo struct {
	db sqlx.ExtContext
}

func NewUserRepo(db sqlx.ExtContext) *UserRepo { return &UserRepo{db: db} }

const selectUser = `SELECT u.id, u.email, u.phone, u.password_hash, u.password_algo, u.status,
		u.email_verified, u.phone_verified, u.login_attempts, u.locked_until, u.last_login_at,
		u.role_id, r.name AS role, u.registration_method, u.created_at, u.updated_at
	FROM users u JOIN roles r ON r.id = u.role_id`

// Create inserts a new user row. The caller assigns the ID.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (id, email, phone, password_hash, password_algo, status,
		email_verified, phone_verified, role_id, registration_method, created_at, updated_at)
		VALUES (:id, :email, :phone, :password_hash, :password_algo, :status,
		:email_verified, :phone_verified, :role_id, :registration_method, :created_at, :updated_at)`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, u)
	return err
}

// GetByEmail returns a user matched by email (case-insensitive due to citext) or sql.ErrNoRows.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	var u entity.User
	if err := sqlx.GetContext(ctx, r.db, &u, selectUser+` WHERE u.email = $1`, email); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByPhone fetches by normalized phone number.
func (r *UserRepo) GetByPhone(ctx context.Context, phone string) (*entity.User, error) {
	var u entity.User
	if err := sqlx.GetContext(ctx, r.db, &u, selectUser+` WHERE u.phone = $1`, phone); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID fetches a full user row.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	var u entity.User
	if err := sqlx.GetContext(ctx, r.db, &u, selectUser+` WHERE u.id = $1`, id); err != nil {
		return nil, err
	}
	return &u, nil
}

// IncrementLoginAttempts increments the failure counter atomically and returns
// the new value. A lock that expired before now is cleared and counting starts
// over at one.
func (r *UserRepo) IncrementLoginAttempts(ctx context.Context, id int64, now time.Time) (int, error) {
	const q = `UPDATE users SET
		login_attempts = CASE WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN 1 ELSE login_attempts + 1 END,
		locked_until = CASE WHEN locked_until <= $2 THEN NULL ELSE locked_until END,
		updated_at = NOW()
	WHERE id = $1 RETURNING login_attempts`
	var v int
	if err := sqlx.GetContext(ctx, r.db, &v, q, id, now); err != nil {
		return 0, err
	}
	return v, nil
}

// Lock sets locked_until. The status column is left alone; lockout is a separate sub-state.
func (r *UserRepo) Lock(ctx context.Context, id int64, until time.Time) error {
	const q = `UPDATE users SET locked_until = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id, until)
	return err
}

// ResetLoginSuccess resets failure metrics on successful authentication. It
// reports false, changing nothing, while a lock set by a concurrent failure is
// still active at at.
func (r *UserRepo) ResetLoginSuccess(ctx context.Context, id int64, at time.Time) (bool, error) {
	const q = `UPDATE users SET login_attempts = 0, last_login_at = $2, locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND (locked_until IS NULL OR locked_until <= $2)`
	res, err := r.db.ExecContext(ctx, q, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// TouchLastLogin stamps a successful login without touching the lockout state.
func (r *UserRepo) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	return err
}

// GetByIDForUpdate fetches the row and locks it until the transaction ends.
func (r *UserRepo) GetByIDForUpdate(ctx context.Context, id int64) (*entity.User, error) {
	var u entity.User
	if err := sqlx.GetContext(ctx, r.db, &u, selectUser+` WHERE u.id = $1 FOR UPDATE OF u`, id); err != nil {
		return nil, err
	}
	return &u, nil
}

// SaveVerification writes the verification flags and status of u.
func (r *UserRepo) SaveVerification(ctx context.Context, u *entity.User) error {
	const q = `UPDATE users SET email_verified = $2, phone_verified = $3, status = $4, updated_at = NOW()
		WHERE id = $1 RETURNING id`
	var one int64
	return sqlx.GetContext(ctx, r.db, &one, q, u.ID, u.EmailVerified, u.PhoneVerified, u.Status)
}

// UpdatePassword replaces the password hash and algorithm and clears lockout.
func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, hash, algo string) error {
	const q = `UPDATE users SET password_hash = $2, password_algo = $3, login_attempts = 0, locked_until = NULL,
		updated_at = NOW() WHERE id = $1 RETURNING id`
	var one int64
	return sqlx.GetContext(ctx, r.db, &one, q, id, hash, algo)
}
