package rbac

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"appeals-platform/internal/auth"
	"appeals-platform/internal/problem"

	"github.com/gin-gonic/gin"
)

// DenialRecorder receives authorization denials so they land in the audit
// log. Implementations must be best-effort; a recording failure never blocks
// the denial itself.
type DenialRecorder interface {
	RecordDenial(ctx context.Context, user AdminUser, code, route, method string)
}

// Guard enforces the per-request authorization pipeline:
//
//	Unauthenticated -> Authenticated -> Authorized -> TenantScoped
//
// Each stage is a hard gate; failure is terminal for the request and never
// falls through to a later stage.
type Guard struct {
	catalog *Catalog
	admins  AdminUserRepo
	denials DenialRecorder
}

func NewGuard(catalog *Catalog, admins AdminUserRepo, denials DenialRecorder) *Guard {
	return &Guard{catalog: catalog, admins: admins, denials: denials}
}

// resolve loads the AdminUser for the authenticated principal and derives its
// permission set from the catalog.
func (g *Guard) resolve(c *gin.Context) (AdminUser, bool) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil || userID == "" {
		problem.Abort(c, http.StatusUnauthorized, problem.CodeAuthenticationRequired, "credential missing, invalid or expired")
		return AdminUser{}, false
	}

	u, err := g.admins.FindByID(c.Request.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		problem.Abort(c, http.StatusForbidden, problem.CodeAdminAccessRequired, "no admin account exists for this principal")
		return AdminUser{}, false
	}
	if err != nil {
		problem.Abort(c, http.StatusInternalServerError, problem.CodeUpstreamFailure, "admin lookup failed")
		return AdminUser{}, false
	}

	u.Permissions = g.catalog.PermissionsFor(u.Role)
	return u, true
}

func (g *Guard) deny(c *gin.Context, u AdminUser, code, detail string) {
	if g.denials != nil {
		g.denials.RecordDenial(c.Request.Context(), u, code, c.Request.URL.Path, c.Request.Method)
	}
	problem.Abort(c, http.StatusForbidden, code, detail)
}

func attach(c *gin.Context, u AdminUser) {
	c.Request = c.Request.WithContext(WithAdminUser(c.Request.Context(), u))
}

// RequirePermission gates a route on a catalog permission.
func (g *Guard) RequirePermission(perm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := g.resolve(c)
		if !ok {
			return
		}
		if !u.HasPermission(perm) {
			g.deny(c, u, problem.CodeInsufficientPermissions, fmt.Sprintf("permission %s is required", perm))
			return
		}
		attach(c, u)
		c.Next()
	}
}

// RequireRole gates a route on an exact admin role.
func (g *Guard) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := g.resolve(c)
		if !ok {
			return
		}
		if u.Role != role {
			g.deny(c, u, problem.CodeInsufficientRole, fmt.Sprintf("role %s is required", role))
			return
		}
		attach(c, u)
		c.Next()
	}
}

// RequireTenantScope verifies the previously attached admin may operate in
// the requested tenant partition. Pass an empty tenant to only assert the
// admin carries a valid scope.
func (g *Guard) RequireTenantScope(requested TenantType) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := AdminFromContext(c.Request.Context())
		if !ok {
			problem.Abort(c, http.StatusForbidden, problem.CodeAdminContextRequired, "tenant-scope check invoked before admin resolution")
			return
		}
		if code, detail, scopeOK := CheckTenantScope(u, requested); !scopeOK {
			g.deny(c, u, code, detail)
			return
		}
		c.Next()
	}
}

// CheckTenantScope implements the tenant-isolation decision shared by the
// guard middleware and the audit query engine.
//
// superadmin always passes. tenant_admin must carry a tenant type and may not
// cross into another partition. auditor is scope-unrestricted read-only.
func CheckTenantScope(u AdminUser, requested TenantType) (code, detail string, ok bool) {
	switch u.Role {
	case RoleSuperAdmin, RoleAuditor:
		return "", "", true
	case RoleTenantAdmin:
		if u.TenantType == "" {
			return problem.CodeMissingTenantScope, "tenant_admin account has no tenant scope", false
		}
		if requested != "" && requested != u.TenantType {
			return problem.CodeCrossTenantAccessDenied,
				fmt.Sprintf("tenant %s is outside this admin's scope", requested), false
		}
		return "", "", true
	default:
		return problem.CodeInsufficientRole, fmt.Sprintf("unrecognized admin role %q", u.Role), false
	}
}
