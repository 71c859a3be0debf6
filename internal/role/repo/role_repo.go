package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth/internal/role/entity"
)

// Repo reads the role catalog seeded by migrations.
type Repo struct {
	db sqlx.ExtContext
}

// NewRepo constructs a new Repo with an existing connection or transaction.
func NewRepo(db sqlx.ExtContext) *Repo {
	return &Repo{db: db}
}

// IDByName returns the role id or sql.ErrNoRows.
func (r *Repo) IDByName(ctx context.Context, name string) (int64, error) {
	var id int64
	if err := sqlx.GetContext(ctx, r.db, &id, `SELECT id FROM roles WHERE name = $1`, name); err != nil {
		return 0, err
	}
	return id, nil
}

// List returns every role with its permission names, ordered by id.
func (r *Repo) List(ctx context.Context) ([]*entity.Role, error) {
	var roles []*entity.Role
	if err := sqlx.SelectContext(ctx, r.db, &roles, `SELECT id, name, description FROM roles ORDER BY id`); err != nil {
		return nil, err
	}
	var links []struct {
		RoleID int64  `db:"role_id"`
		Name   string `db:"name"`
	}
	const q = `SELECT rp.role_id, p.name FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id ORDER BY rp.role_id, p.name`
	if err := sqlx.SelectContext(ctx, r.db, &links, q); err != nil {
		return nil, err
	}
	byID := make(map[int64]*entity.Role, len(roles))
	for _, role := range roles {
		role.Permissions = []string{}
		byID[role.ID] = role
	}
	for _, l := range links {
		if role, ok := byID[l.RoleID]; ok {
			role.Permissions = append(role.Permissions, l.Name)
		}
	}
	return roles, nil
}
