package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth/internal/user/entity"
)

// HistoryRepo appends and lists login_history rows.
type HistoryRepo struct {
	db sqlx.ExtContext
}

func NewHistoryRepo(db sqlx.ExtContext) *HistoryRepo { return &HistoryRepo{db: db} }

func (r *HistoryRepo) Append(ctx context.Context, h *entity.LoginHistory) error {
	const q = `INSERT INTO login_history (id, user_id, ip_address, user_agent, device_info, success, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, '{}')::jsonb, $6, $7, $8)`
	var device any
	if len(h.DeviceInfo) > 0 {
		device = string(h.DeviceInfo)
	}
	_, err := r.db.ExecContext(ctx, q, h.ID, h.UserID, h.IPAddress, h.UserAgent, device, h.Success, h.FailureReason, h.CreatedAt)
	return err
}

// ListByUser returns the most recent entries first.
func (r *HistoryRepo) ListByUser(ctx context.Context, userID int64, limit int) ([]entity.LoginHistory, error) {
	const q = `SELECT id, user_id, ip_address, user_agent, device_info, success, failure_reason, created_at
		FROM login_history WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	out := []entity.LoginHistory{}
	if err := sqlx.SelectContext(ctx, r.db, &out, q, userID, limit); err != nil {
		return nil, err
	}
	return out, nil
}
