package main

import (
	"database/sql"
	"net/http"
	"time"

	"appeals-platform/internal/httpapi"
	"appeals-platform/internal/obs"
	"appeals-platform/internal/rbac"
	"appeals-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, h *httpapi.Handlers, guard *rbac.Guard, authMW gin.HandlerFunc, db *sql.DB) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(obs.Handler()))

	// credential endpoints: public but rate limited per client IP
	loginLimit := httpapi.LoginRateLimit(h.Cfg.Auth.LoginRatePerMinute)
	r.POST("/admin/auth/login", loginLimit, h.Login)
	r.POST("/admin/auth/refresh", loginLimit, h.Refresh)

	// everything else under /admin requires a verified access token plus the
	// guard stage matching the route
	admin := r.Group("/admin")
	admin.Use(authMW)
	{
		admin.GET("/permissions", guard.RequirePermission(rbac.PermRolesRead), h.ListPermissions)

		rolesGroup := admin.Group("/roles")
		{
			rolesGroup.GET("", guard.RequirePermission(rbac.PermRolesRead), h.ListRoles)
			rolesGroup.POST("", guard.RequirePermission(rbac.PermRolesWrite), h.CreateRole)
			rolesGroup.GET("/:id", guard.RequirePermission(rbac.PermRolesRead), h.GetRole)
			rolesGroup.PATCH("/:id", guard.RequirePermission(rbac.PermRolesWrite), h.UpdateRole)
			rolesGroup.DELETE("/:id", guard.RequirePermission(rbac.PermRolesWrite), h.DeleteRole)

			rolesGroup.POST("/export", guard.RequirePermission(rbac.PermRolesImport), h.ExportRoles)
			rolesGroup.POST("/import", guard.RequirePermission(rbac.PermRolesImport), h.ImportRoles)
		}

		auditGroup := admin.Group("/audit")
		{
			read := guard.RequirePermission(rbac.PermAuditRead)
			scope := guard.RequireTenantScope("")

			auditGroup.GET("/logs", read, scope, h.ListAuditLogs)
			auditGroup.GET("/logs/export", guard.RequirePermission(rbac.PermAuditExport), scope, h.ExportAuditLogs)
			auditGroup.GET("/trace/:correlationId", read, scope, h.TraceCorrelation)
			auditGroup.POST("/share", read, scope, h.ShareTrace)
			auditGroup.GET("/share/:token", read, scope, h.ResolveSharedTrace)
		}
	}
}
