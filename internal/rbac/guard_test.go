package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"appeals-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

type denialSpy struct {
	mu    sync.Mutex
	codes []string
}

func (d *denialSpy) RecordDenial(ctx context.Context, user AdminUser, code, route, method string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.codes = append(d.codes, code)
}

func guardRouter(t *testing.T, repo AdminUserRepo, spy *denialSpy, identity func(c *gin.Context)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	g := NewGuard(NewCatalog(), repo, spy)
	r := gin.New()
	if identity != nil {
		r.Use(func(c *gin.Context) { identity(c); c.Next() })
	}

	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) }
	r.GET("/perm", g.RequirePermission(PermRolesWrite), ok)
	r.GET("/role", g.RequireRole(RoleSuperAdmin), ok)
	r.GET("/scope/res", g.RequirePermission(PermAuditRead), g.RequireTenantScope(TenantResidential), ok)
	r.GET("/scope/com", g.RequirePermission(PermAuditRead), g.RequireTenantScope(TenantCommercial), ok)
	return r
}

func asIdentity(id string) func(c *gin.Context) {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id, "", ""))
	}
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func problemCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var p struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v (%s)", err, w.Body.String())
	}
	return p.Code
}

func TestGuardUnauthenticated(t *testing.T) {
	r := guardRouter(t, NewMemoryAdminRepo(), &denialSpy{}, nil)
	w := get(r, "/perm")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	if problemCode(t, w) != "AUTHENTICATION_REQUIRED" {
		t.Fatalf("code = %s", problemCode(t, w))
	}
}

func TestGuardUnknownPrincipal(t *testing.T) {
	r := guardRouter(t, NewMemoryAdminRepo(), &denialSpy{}, asIdentity("ghost"))
	w := get(r, "/perm")
	if w.Code != http.StatusForbidden || problemCode(t, w) != "ADMIN_ACCESS_REQUIRED" {
		t.Fatalf("status=%d code=%s", w.Code, problemCode(t, w))
	}
}

func TestGuardPermissionStage(t *testing.T) {
	repo := NewMemoryAdminRepo(AdminUser{ID: "aud", Role: RoleAuditor})
	spy := &denialSpy{}
	r := guardRouter(t, repo, spy, asIdentity("aud"))

	w := get(r, "/perm")
	if w.Code != http.StatusForbidden || problemCode(t, w) != "INSUFFICIENT_PERMISSIONS" {
		t.Fatalf("status=%d code=%s", w.Code, problemCode(t, w))
	}
	if len(spy.codes) != 1 || spy.codes[0] != "INSUFFICIENT_PERMISSIONS" {
		t.Fatalf("denials = %v", spy.codes)
	}
}

func TestGuardRoleStage(t *testing.T) {
	repo := NewMemoryAdminRepo(AdminUser{ID: "ta", Role: RoleTenantAdmin, TenantType: TenantResidential})
	r := guardRouter(t, repo, &denialSpy{}, asIdentity("ta"))

	w := get(r, "/role")
	if w.Code != http.StatusForbidden || problemCode(t, w) != "INSUFFICIENT_ROLE" {
		t.Fatalf("status=%d code=%s", w.Code, problemCode(t, w))
	}
}

func TestGuardTenantScopeStage(t *testing.T) {
	repo := NewMemoryAdminRepo(
		AdminUser{ID: "ta", Role: RoleTenantAdmin, TenantType: TenantResidential},
		AdminUser{ID: "bare", Role: RoleTenantAdmin},
		AdminUser{ID: "root", Role: RoleSuperAdmin},
	)
	spy := &denialSpy{}

	r := guardRouter(t, repo, spy, asIdentity("ta"))
	if w := get(r, "/scope/res"); w.Code != http.StatusOK {
		t.Fatalf("own tenant: %d (%s)", w.Code, w.Body.String())
	}
	if w := get(r, "/scope/com"); w.Code != http.StatusForbidden || problemCode(t, w) != "CROSS_TENANT_ACCESS_DENIED" {
		t.Fatalf("cross tenant: %d %s", w.Code, problemCode(t, w))
	}

	r = guardRouter(t, repo, spy, asIdentity("bare"))
	if w := get(r, "/scope/res"); problemCode(t, w) != "MISSING_TENANT_SCOPE" {
		t.Fatalf("bare tenant admin: %s", problemCode(t, w))
	}

	r = guardRouter(t, repo, spy, asIdentity("root"))
	if w := get(r, "/scope/com"); w.Code != http.StatusOK {
		t.Fatalf("superadmin blocked: %d", w.Code)
	}
}

func TestCheckTenantScope(t *testing.T) {
	cases := []struct {
		name      string
		user      AdminUser
		requested TenantType
		wantOK    bool
		wantCode  string
	}{
		{"superadmin any", AdminUser{Role: RoleSuperAdmin}, TenantCommercial, true, ""},
		{"auditor any", AdminUser{Role: RoleAuditor}, TenantResidential, true, ""},
		{"tenant admin own", AdminUser{Role: RoleTenantAdmin, TenantType: TenantResidential}, TenantResidential, true, ""},
		{"tenant admin cross", AdminUser{Role: RoleTenantAdmin, TenantType: TenantResidential}, TenantCommercial, false, "CROSS_TENANT_ACCESS_DENIED"},
		{"tenant admin unscoped", AdminUser{Role: RoleTenantAdmin}, TenantResidential, false, "MISSING_TENANT_SCOPE"},
		{"unknown role", AdminUser{Role: "intern"}, "", false, "INSUFFICIENT_ROLE"},
	}
	for _, c := range cases {
		code, _, ok := CheckTenantScope(c.user, c.requested)
		if ok != c.wantOK || code != c.wantCode {
			t.Errorf("%s: ok=%v code=%q", c.name, ok, code)
		}
	}
}

func TestGuardDerivesPermissionsFromCatalog(t *testing.T) {
	repo := NewMemoryAdminRepo(AdminUser{ID: "root", Role: RoleSuperAdmin})
	gin.SetMode(gin.TestMode)

	g := NewGuard(NewCatalog(), repo, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "root", "", ""))
		c.Next()
	})
	r.GET("/", g.RequirePermission(PermSystemConfig), func(c *gin.Context) {
		u, ok := AdminFromContext(c.Request.Context())
		if !ok || !u.HasPermission(PermAuditRead) {
			c.JSON(http.StatusInternalServerError, gin.H{"err": "permissions not derived"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	if w := get(r, "/"); w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
}
