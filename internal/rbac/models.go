package rbac

import (
	"context"
	"errors"
	"time"
)

// TenantType is one of the two mutually exclusive data partitions.
type TenantType string

const (
	TenantResidential TenantType = "RESIDENTIAL"
	TenantCommercial  TenantType = "COMMERCIAL"
)

// TenantAll is the sentinel a superadmin may pass to query across partitions.
const TenantAll = "ALL"

func ValidTenantType(t TenantType) bool {
	return t == TenantResidential || t == TenantCommercial
}

// Admin role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleSuperAdmin  = "superadmin"
	RoleTenantAdmin = "tenant_admin"
	RoleAuditor     = "auditor"
)

func ValidAdminRole(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleTenantAdmin, RoleAuditor:
		return true
	default:
		return false
	}
}

// AdminUser is the identity resolved from an authenticated session.
//
// Invariants:
// - Permissions are always derived from the role via the catalog, never stored.
// - TenantType is required and immutable for tenant_admin.
// - Resolved fresh per request; never mutated after resolution.
type AdminUser struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	TenantType   TenantType `json:"tenantType,omitempty"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`

	// Permissions is filled by the guard from the catalog.
	Permissions map[string]struct{} `json:"-"`
}

// HasPermission reports whether the derived permission set grants perm.
func (u AdminUser) HasPermission(perm string) bool {
	_, ok := u.Permissions[perm]
	return ok
}

var (
	ErrNotFound = errors.New("rbac: not found")
)

// AdminUserRepo abstracts admin identity lookup.
// Implementations must treat records as read-only from the guard's view.
type AdminUserRepo interface {
	FindByID(ctx context.Context, id string) (AdminUser, error)
	FindByEmail(ctx context.Context, email string) (AdminUser, error)
}
