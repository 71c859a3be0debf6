// Package store implements auth.Store on PostgreSQL by composing the table
// repositories. Multi-row units run inside database.WithTx.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-auth/internal/account"
	"github.com/ovaphlow/pitchfork/service-auth/internal/auth"
	otpentity "github.com/ovaphlow/pitchfork/service-auth/internal/otp/entity"
	otprepo "github.com/ovaphlow/pitchfork/service-auth/internal/otp/repo"
	profileentity "github.com/ovaphlow/pitchfork/service-auth/internal/profile/entity"
	profilerepo "github.com/ovaphlow/pitchfork/service-auth/internal/profile/repo"
	rolerepo "github.com/ovaphlow/pitchfork/service-auth/internal/role/repo"
	tokenentity "github.com/ovaphlow/pitchfork/service-auth/internal/token/entity"
	tokenrepo "github.com/ovaphlow/pitchfork/service-auth/internal/token/repo"
	userentity "github.com/ovaphlow/pitchfork/service-auth/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-auth/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-auth/pkg/database"
)

const uniqueViolation = "23505"

var _ auth.Store = (*Postgres)(nil)

type Postgres struct {
	db       *sqlx.DB
	users    *userrepo.UserRepo
	history  *userrepo.HistoryRepo
	profiles *profilerepo.ProfileRepo
	roles    *rolerepo.Repo
	otps     *otprepo.OtpRepo
	refresh  *tokenrepo.RefreshRepo
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{
		db:       db,
		users:    userrepo.NewUserRepo(db),
		history:  userrepo.NewHistoryRepo(db),
		profiles: profilerepo.NewProfileRepo(db),
		roles:    rolerepo.NewRepo(db),
		otps:     otprepo.NewOtpRepo(db),
		refresh:  tokenrepo.NewRefreshRepo(db),
	}
}

// isUniqueViolation reports a unique constraint failure on users.email or
// users.phone.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return false
	}
	switch pqErr.Constraint {
	case "users_email_key", "users_phone_key":
		return true
	}
	return false
}

func (p *Postgres) UserByEmail(ctx context.Context, email string) (*userentity.User, error) {
	return p.users.GetByEmail(ctx, email)
}

func (p *Postgres) UserByPhone(ctx context.Context, phone string) (*userentity.User, error) {
	return p.users.GetByPhone(ctx, phone)
}

func (p *Postgres) UserByID(ctx context.Context, id int64) (*userentity.User, error) {
	return p.users.GetByID(ctx, id)
}

func (p *Postgres) RoleIDByName(ctx context.Context, name string) (int64, error) {
	return p.roles.IDByName(ctx, name)
}

func (p *Postgres) CreateAccount(ctx context.Context, u *userentity.User, prof *profileentity.Profile) error {
	err := database.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		if err := userrepo.NewUserRepo(tx).Create(ctx, u); err != nil {
			return err
		}
		return profilerepo.NewProfileRepo(tx).Create(ctx, prof)
	})
	if isUniqueViolation(err) {
		return auth.ErrIdentifierTaken
	}
	return err
}

func (p *Postgres) IncrementLoginAttempts(ctx context.Context, userID int64, now time.Time) (int, error) {
	return p.users.IncrementLoginAttempts(ctx, userID, now)
}

func (p *Postgres) LockUser(ctx context.Context, userID int64, until time.Time) error {
	return p.users.Lock(ctx, userID, until)
}

func (p *Postgres) CompleteLogin(ctx context.Context, rec auth.LoginRecord) error {
	return database.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		users := userrepo.NewUserRepo(tx)
		if rec.ResetLockout {
			ok, err := users.ResetLoginSuccess(ctx, rec.UserID, rec.At)
			if err != nil {
				return err
			}
			if !ok {
				return auth.ErrAccountLocked
			}
		} else if err := users.TouchLastLogin(ctx, rec.UserID, rec.At); err != nil {
			return err
		}
		if err := userrepo.NewHistoryRepo(tx).Append(ctx, rec.History); err != nil {
			return err
		}
		return tokenrepo.NewRefreshRepo(tx).Save(ctx, rec.Refresh)
	})
}

func (p *Postgres) AppendLoginHistory(ctx context.Context, h *userentity.LoginHistory) error {
	return p.history.Append(ctx, h)
}

func (p *Postgres) LoginHistory(ctx context.Context, userID int64, limit int) ([]userentity.LoginHistory, error) {
	return p.history.ListByUser(ctx, userID, limit)
}

// MarkVerified applies the account verification rules to the locked row.
func (p *Postgres) MarkVerified(ctx context.Context, userID int64, channel otpentity.Channel) (*userentity.User, error) {
	var out *userentity.User
	err := database.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		users := userrepo.NewUserRepo(tx)
		u, err := users.GetByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		account.ApplyVerification(u, string(channel))
		if err := users.SaveVerification(ctx, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Postgres) UpdatePassword(ctx context.Context, userID int64, hash, algo string, at time.Time) error {
	return database.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		if err := userrepo.NewUserRepo(tx).UpdatePassword(ctx, userID, hash, algo); err != nil {
			return err
		}
		_, err := tokenrepo.NewRefreshRepo(tx).RevokeAll(ctx, userID, at)
		return err
	})
}

func (p *Postgres) Profile(ctx context.Context, userID int64) (*profileentity.Profile, error) {
	return p.profiles.GetByUserID(ctx, userID)
}

func (p *Postgres) UpdateFCMToken(ctx context.Context, userID int64, token string) error {
	return p.profiles.UpdateFCMToken(ctx, userID, token)
}

func (p *Postgres) RefreshToken(ctx context.Context, token string) (*tokenentity.RefreshToken, error) {
	return p.refresh.Get(ctx, token)
}

func (p *Postgres) RotateRefreshToken(ctx context.Context, old, next *tokenentity.RefreshToken, at time.Time) error {
	return database.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		repo := tokenrepo.NewRefreshRepo(tx)
		ok, err := repo.Revoke(ctx, old.Token, old.UserID, at, &next.Token)
		if err != nil {
			return err
		}
		if !ok {
			return auth.ErrRefreshReplayed
		}
		return repo.Save(ctx, next)
	})
}

func (p *Postgres) RevokeRefreshToken(ctx context.Context, userID int64, token string, at time.Time) (bool, error) {
	return p.refresh.Revoke(ctx, token, userID, at, nil)
}

func (p *Postgres) RevokeAllRefreshTokens(ctx context.Context, userID int64, at time.Time) (int64, error) {
	return p.refresh.RevokeAll(ctx, userID, at)
}

func (p *Postgres) UpsertOtp(ctx context.Context, c *otpentity.Code) error {
	return p.otps.Upsert(ctx, c)
}

func (p *Postgres) FindLiveOtp(ctx context.Context, target string, channel otpentity.Channel, now time.Time) (*otpentity.Code, error) {
	return p.otps.FindLive(ctx, target, channel, now)
}

func (p *Postgres) UseOtpAttempt(ctx context.Context, id int64) (int, error) {
	return p.otps.UseAttempt(ctx, id)
}

func (p *Postgres) MarkOtpUsed(ctx context.Context, id int64, code string) (bool, error) {
	return p.otps.MarkUsed(ctx, id, code)
}

func (p *Postgres) DeleteOtp(ctx context.Context, id int64) error {
	return p.otps.Delete(ctx, id)
}
