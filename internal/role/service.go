package role

import (
	"context"

	"github.com/ovaphlow/pitchfork/service-auth/internal/role/entity"
)

// Lister is the read side of the role catalog.
type Lister interface {
	List(ctx context.Context) ([]*entity.Role, error)
}

// Service encapsulates read access to the seeded role catalog.
type Service struct {
	repo Lister
}

// NewService constructs a Service with the provided repository.
func NewService(r Lister) *Service {
	return &Service{repo: r}
}

// ListRolePermissions returns all roles with their permissions.
func (s *Service) ListRolePermissions(ctx context.Context) ([]*entity.Role, error) {
	return s.repo.List(ctx)
}
