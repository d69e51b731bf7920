package rbac

import "sort"

// Permission identifiers. These are the only capabilities the console knows;
// roles reference them by id.
const (
	PermAuditRead    = "admin:audit:read"
	PermAuditExport  = "admin:audit:export"
	PermRolesRead    = "admin:roles:read"
	PermRolesWrite   = "admin:roles:write"
	PermRolesImport  = "admin:roles:import"
	PermUsersRead    = "admin:users:read"
	PermBillingRead  = "admin:billing:read"
	PermSystemConfig = "admin:system:config"
)

// Permission is a capability entry in the static catalog.
type Permission struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Description string `json:"description"`
	IsSystem    bool   `json:"isSystem"`
}

// Catalog is the single source of truth for authorization decisions.
// It is constructed once at process start and never mutated, which makes
// unsynchronized concurrent reads safe.
type Catalog struct {
	perms  map[string]Permission
	grants map[string]map[string]struct{}
}

// NewCatalog builds the static role -> permission mapping.
func NewCatalog() *Catalog {
	perms := []Permission{
		{ID: PermAuditRead, Category: "audit", Description: "Read audit logs and correlation traces"},
		{ID: PermAuditExport, Category: "audit", Description: "Export audit logs as CSV"},
		{ID: PermRolesRead, Category: "roles", Description: "View role definitions"},
		{ID: PermRolesWrite, Category: "roles", Description: "Create, edit and delete role definitions"},
		{ID: PermRolesImport, Category: "roles", Description: "Bulk import and export role definitions"},
		{ID: PermUsersRead, Category: "users", Description: "View admin user accounts"},
		{ID: PermBillingRead, Category: "billing", Description: "View billing and subscription data"},
		{ID: PermSystemConfig, Category: "system", Description: "Change platform configuration", IsSystem: true},
	}

	grants := map[string][]string{
		RoleSuperAdmin: {
			PermAuditRead, PermAuditExport,
			PermRolesRead, PermRolesWrite, PermRolesImport,
			PermUsersRead, PermBillingRead, PermSystemConfig,
		},
		RoleTenantAdmin: {
			PermAuditRead, PermAuditExport,
			PermRolesRead,
			PermUsersRead, PermBillingRead,
		},
		RoleAuditor: {
			PermAuditRead, PermAuditExport,
		},
	}

	c := &Catalog{
		perms:  make(map[string]Permission, len(perms)),
		grants: make(map[string]map[string]struct{}, len(grants)),
	}
	for _, p := range perms {
		c.perms[p.ID] = p
	}
	for role, ids := range grants {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		c.grants[role] = set
	}
	return c
}

// Has reports whether role is granted perm.
func (c *Catalog) Has(role, perm string) bool {
	_, ok := c.grants[role][perm]
	return ok
}

// PermissionsFor returns a fresh copy of the permission set for a role.
// Unknown roles get an empty set.
func (c *Catalog) PermissionsFor(role string) map[string]struct{} {
	src := c.grants[role]
	out := make(map[string]struct{}, len(src))
	for id := range src {
		out[id] = struct{}{}
	}
	return out
}

// Lookup returns the catalog entry for a permission id.
func (c *Catalog) Lookup(id string) (Permission, bool) {
	p, ok := c.perms[id]
	return p, ok
}

// All returns every catalog entry, sorted by id.
func (c *Catalog) All() []Permission {
	out := make([]Permission, 0, len(c.perms))
	for _, p := range c.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ValidateSet checks a permission id set against the catalog.
// missing lists ids absent from the catalog; system lists isSystem ids, which
// are only assignable when allowSystem is true (global-scope roles).
func (c *Catalog) ValidateSet(ids []string, allowSystem bool) (missing, system []string) {
	for _, id := range ids {
		p, ok := c.perms[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		if p.IsSystem && !allowSystem {
			system = append(system, id)
		}
	}
	return missing, system
}
