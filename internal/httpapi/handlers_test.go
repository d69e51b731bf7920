package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"appeals-platform/internal/audit"
	"appeals-platform/internal/auth"
	"appeals-platform/internal/config"
	"appeals-platform/internal/rbac"
	"appeals-platform/internal/roles"
	"appeals-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

type testEnv struct {
	router    *gin.Engine
	tokens    *auth.Manager
	admins    *rbac.MemoryAdminRepo
	auditRepo *audit.MemoryRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{}
	cfg.Auth = config.AuthConfig{
		JWTSecret:          "test-secret",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    24 * time.Hour,
		LoginRatePerMinute: 100,
	}
	cfg.Audit.RetentionDays = 180
	cfg.Audit.ExportMaxConcurrent = 2

	tokens, err := auth.NewManager(cfg.Auth)
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	catalog := rbac.NewCatalog()
	admins := rbac.NewMemoryAdminRepo()
	auditRepo := audit.NewMemoryRepository()
	auditSvc := audit.NewService(auditRepo)

	h := &Handlers{
		Catalog:  catalog,
		Registry: roles.NewRegistry(roles.NewMemoryRepository(), catalog),
		Audit:    auditSvc,
		Admins:   admins,
		Tokens:   tokens,
		Cfg:      cfg,
	}
	guard := rbac.NewGuard(catalog, admins, DenialLog{Audit: auditSvc})

	r := gin.New()
	r.Use(logger.Middleware(logger.New("local")))

	r.POST("/admin/auth/login", LoginRateLimit(cfg.Auth.LoginRatePerMinute), h.Login)
	r.POST("/admin/auth/refresh", h.Refresh)

	api := r.Group("/admin")
	api.Use(auth.RequireAccessToken(tokens))
	{
		api.GET("/permissions", guard.RequirePermission(rbac.PermRolesRead), h.ListPermissions)

		api.GET("/roles", guard.RequirePermission(rbac.PermRolesRead), h.ListRoles)
		api.POST("/roles", guard.RequirePermission(rbac.PermRolesWrite), h.CreateRole)
		api.GET("/roles/:id", guard.RequirePermission(rbac.PermRolesRead), h.GetRole)
		api.PATCH("/roles/:id", guard.RequirePermission(rbac.PermRolesWrite), h.UpdateRole)
		api.DELETE("/roles/:id", guard.RequirePermission(rbac.PermRolesWrite), h.DeleteRole)

		api.GET("/audit/logs", guard.RequirePermission(rbac.PermAuditRead), guard.RequireTenantScope(""), h.ListAuditLogs)
		api.GET("/audit/trace/:correlationId", guard.RequirePermission(rbac.PermAuditRead), h.TraceCorrelation)
	}

	return &testEnv{router: r, tokens: tokens, admins: admins, auditRepo: auditRepo}
}

func (e *testEnv) seedAdmin(t *testing.T, id, email, role string, tenant rbac.TenantType) string {
	t.Helper()
	hash, err := auth.HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	e.admins.Put(rbac.AdminUser{
		ID: id, Email: email, Role: role, TenantType: tenant,
		PasswordHash: hash, CreatedAt: time.Now().UTC(),
	})

	pair, err := e.tokens.IssuePair(time.Now().UTC(), id, role, string(tenant))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return pair.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var p map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode problem: %v (%s)", err, w.Body.String())
	}
	return p
}

func roleBody() map[string]any {
	return map[string]any{
		"name":        "Appeals Reviewer",
		"description": "Read-only audit access",
		"scope":       "tenant",
		"tenantType":  "RESIDENTIAL",
		"permissions": []string{rbac.PermAuditRead},
		"changeNotes": "initial version",
	}
}

func TestMissingTokenIsUnauthenticated(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/admin/roles", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	p := decodeProblem(t, w)
	if p["code"] != "AUTHENTICATION_REQUIRED" {
		t.Fatalf("code = %v", p["code"])
	}
	if p["correlationId"] == "" {
		t.Fatalf("expected correlation id in envelope")
	}
}

func TestTokenWithoutAdminAccountIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	pair, _ := env.tokens.IssuePair(time.Now().UTC(), "ghost", "superadmin", "")
	w := env.do(t, http.MethodGet, "/admin/roles", pair.AccessToken, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
	if p := decodeProblem(t, w); p["code"] != "ADMIN_ACCESS_REQUIRED" {
		t.Fatalf("code = %v", p["code"])
	}
}

func TestInsufficientPermissionIsDeniedAndAudited(t *testing.T) {
	env := newTestEnv(t)
	token := env.seedAdmin(t, "aud-1", "auditor@example.com", rbac.RoleAuditor, "")

	w := env.do(t, http.MethodPost, "/admin/roles", token, roleBody())
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if p := decodeProblem(t, w); p["code"] != "INSUFFICIENT_PERMISSIONS" {
		t.Fatalf("code = %v", p["code"])
	}

	entries, total, err := env.auditRepo.Query(context.Background(),
		audit.Filters{Action: "access.denied"}, audit.Sort{}, audit.Page{Limit: 10})
	if err != nil || total != 1 {
		t.Fatalf("denial entries: err=%v total=%d", err, total)
	}
	if entries[0].Status != audit.StatusDenied || entries[0].UserID != "aud-1" {
		t.Fatalf("denial entry = %+v", entries[0])
	}
}

func TestRoleLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	token := env.seedAdmin(t, "root-1", "root@example.com", rbac.RoleSuperAdmin, "")

	w := env.do(t, http.MethodPost, "/admin/roles", token, roleBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", w.Code, w.Body.String())
	}
	var created roles.Role
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode role: %v", err)
	}
	if created.Version != 1 || created.LastEditor != "root-1" {
		t.Fatalf("created = %+v", created)
	}

	update := roleBody()
	update["description"] = "expanded"
	update["changeNotes"] = "widen description"
	update["expectedVersion"] = 1
	w = env.do(t, http.MethodPatch, "/admin/roles/"+created.ID, token, update)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d (%s)", w.Code, w.Body.String())
	}

	// Replaying the same expectedVersion must now conflict.
	w = env.do(t, http.MethodPatch, "/admin/roles/"+created.ID, token, update)
	if w.Code != http.StatusConflict {
		t.Fatalf("stale update status = %d", w.Code)
	}
	if p := decodeProblem(t, w); p["code"] != "CONFLICT" {
		t.Fatalf("code = %v", p["code"])
	}

	w = env.do(t, http.MethodDelete, "/admin/roles/"+created.ID, token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/admin/roles/"+created.ID, token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", w.Code)
	}

	// Every mutation left an audit record.
	for _, action := range []string{"role.create", "role.update", "role.delete"} {
		_, total, err := env.auditRepo.Query(context.Background(),
			audit.Filters{Action: action}, audit.Sort{}, audit.Page{Limit: 10})
		if err != nil || total == 0 {
			t.Fatalf("no audit entries for %s (err=%v)", action, err)
		}
	}
}

func TestValidationErrorsEnumerateFields(t *testing.T) {
	env := newTestEnv(t)
	token := env.seedAdmin(t, "root-1", "root@example.com", rbac.RoleSuperAdmin, "")

	w := env.do(t, http.MethodPost, "/admin/roles", token, map[string]any{"scope": "tenant"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	p := decodeProblem(t, w)
	if p["code"] != "VALIDATION_ERROR" {
		t.Fatalf("code = %v", p["code"])
	}
	errs, _ := p["errors"].([]any)
	if len(errs) < 3 {
		t.Fatalf("expected multiple field errors, got %v", errs)
	}
}

func TestAuditLogListAndRetentionHeader(t *testing.T) {
	env := newTestEnv(t)
	token := env.seedAdmin(t, "root-1", "root@example.com", rbac.RoleSuperAdmin, "")

	// A create produces an audit entry to list.
	if w := env.do(t, http.MethodPost, "/admin/roles", token, roleBody()); w.Code != http.StatusCreated {
		t.Fatalf("seed create status = %d", w.Code)
	}

	w := env.do(t, http.MethodGet, "/admin/audit/logs?action=role.create", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Audit-Retention-Days"); got != "180" {
		t.Fatalf("retention header = %q", got)
	}

	var resp struct {
		Logs          []audit.Entry `json:"logs"`
		Total         int           `json:"total"`
		Limit         int           `json:"limit"`
		RetentionDays int           `json:"retentionDays"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Logs) != 1 {
		t.Fatalf("total=%d len=%d", resp.Total, len(resp.Logs))
	}
	if resp.Limit != 50 || resp.RetentionDays != 180 {
		t.Fatalf("limit=%d retention=%d", resp.Limit, resp.RetentionDays)
	}
}

func TestAuditLogRejectsBadQueryParams(t *testing.T) {
	env := newTestEnv(t)
	token := env.seedAdmin(t, "root-1", "root@example.com", rbac.RoleSuperAdmin, "")

	w := env.do(t, http.MethodGet, "/admin/audit/logs?tenant=INDUSTRIAL&status=MAYBE", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	p := decodeProblem(t, w)
	errs, _ := p["errors"].([]any)
	if len(errs) != 2 {
		t.Fatalf("errors = %v", errs)
	}
}

func TestTraceEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := env.seedAdmin(t, "root-1", "root@example.com", rbac.RoleSuperAdmin, "")

	// Two mutations in separate requests carry distinct correlation ids.
	if w := env.do(t, http.MethodPost, "/admin/roles", token, roleBody()); w.Code != http.StatusCreated {
		t.Fatalf("seed create status = %d", w.Code)
	}

	entries, _, err := env.auditRepo.Query(context.Background(),
		audit.Filters{Action: "role.create"}, audit.Sort{}, audit.Page{Limit: 1})
	if err != nil || len(entries) != 1 {
		t.Fatalf("seed lookup: %v", err)
	}
	cid := entries[0].CorrelationID
	if cid == "" {
		t.Fatalf("expected correlation id on audit entry")
	}

	w := env.do(t, http.MethodGet, "/admin/audit/trace/"+cid, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	var resp struct {
		CorrelationID string        `json:"correlationId"`
		Fragment      string        `json:"fragment"`
		Entries       []audit.Entry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Fragment != "cid="+cid {
		t.Fatalf("fragment = %q", resp.Fragment)
	}
	if len(resp.Entries) != 1 {
		t.Fatalf("entries = %d", len(resp.Entries))
	}
}

func TestLoginAndRefreshFlow(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t, "root-1", "root@example.com", rbac.RoleSuperAdmin, "")

	w := env.do(t, http.MethodPost, "/admin/auth/login", "", map[string]string{
		"email": "root@example.com", "password": "correct horse battery",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d (%s)", w.Code, w.Body.String())
	}
	var tokens struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		TokenType    string `json:"tokenType"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &tokens); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tokens.TokenType != "Bearer" || tokens.AccessToken == "" {
		t.Fatalf("tokens = %+v", tokens)
	}

	// The issued access token works on protected routes.
	if w := env.do(t, http.MethodGet, "/admin/roles", tokens.AccessToken, nil); w.Code != http.StatusOK {
		t.Fatalf("list with issued token = %d", w.Code)
	}

	// Refresh rotates the pair.
	w = env.do(t, http.MethodPost, "/admin/auth/refresh", "", map[string]string{
		"refreshToken": tokens.RefreshToken,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d (%s)", w.Code, w.Body.String())
	}

	// An access token is not accepted as a refresh token.
	w = env.do(t, http.MethodPost, "/admin/auth/refresh", "", map[string]string{
		"refreshToken": tokens.AccessToken,
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh with access token = %d", w.Code)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t, "root-1", "root@example.com", rbac.RoleSuperAdmin, "")

	w := env.do(t, http.MethodPost, "/admin/auth/login", "", map[string]string{
		"email": "root@example.com", "password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}

	// Unknown account gets the identical response.
	w2 := env.do(t, http.MethodPost, "/admin/auth/login", "", map[string]string{
		"email": "nobody@example.com", "password": "wrong",
	})
	if w2.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w2.Code)
	}
	if decodeProblem(t, w)["code"] != decodeProblem(t, w2)["code"] {
		t.Fatalf("responses must not distinguish unknown accounts")
	}
}

func TestTenantAdminAuditViewIsScoped(t *testing.T) {
	env := newTestEnv(t)
	rootToken := env.seedAdmin(t, "root-1", "root@example.com", rbac.RoleSuperAdmin, "")
	taToken := env.seedAdmin(t, "ta-1", "ta@example.com", rbac.RoleTenantAdmin, rbac.TenantResidential)

	// Seed one entry per partition directly.
	for _, tt := range []rbac.TenantType{rbac.TenantResidential, rbac.TenantCommercial} {
		err := env.auditRepo.Append(context.Background(), audit.Entry{
			ID: "seed-" + string(tt), UserID: "x", Action: "role.update",
			TenantType: tt, Status: audit.StatusSuccess, CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	w := env.do(t, http.MethodGet, "/admin/audit/logs?action=role.update&tenant=COMMERCIAL", taToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	var resp struct {
		Logs []audit.Entry `json:"logs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Logs) != 1 || resp.Logs[0].TenantType != rbac.TenantResidential {
		t.Fatalf("tenant filter not forced: %+v", resp.Logs)
	}

	// Superadmin sees both.
	w = env.do(t, http.MethodGet, "/admin/audit/logs?action=role.update", rootToken, nil)
	var all struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if all.Total != 2 {
		t.Fatalf("superadmin total = %d", all.Total)
	}
}
