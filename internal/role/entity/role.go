package entity

// DefaultRole is assigned to self-registered and federated accounts.
const DefaultRole = "tenant"

// Role is a seeded row of the roles table with its permission names.
type Role struct {
	ID          int64    `db:"id" json:"id"`
	Name        string   `db:"name" json:"name"`
	Description string   `db:"description" json:"description"`
	Permissions []string `db:"-" json:"permissions"`
}

// SelfAssignable reports whether a role may be picked at registration.
func SelfAssignable(name string) bool {
	switch name {
	case "tenant", "landlord", "agent":
		return true
	default:
		return false
	}
}
