package httpapi

import (
	"net/http"

	"appeals-platform/internal/audit"
	"appeals-platform/internal/problem"
	"appeals-platform/internal/roles"

	"github.com/gin-gonic/gin"
)

// ListPermissions serves the static permission catalog.
func (h *Handlers) ListPermissions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"permissions": h.Catalog.All()})
}

func (h *Handlers) ListRoles(c *gin.Context) {
	list, err := h.Registry.List(c.Request.Context())
	if err != nil {
		h.failUpstream(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": list})
}

func (h *Handlers) GetRole(c *gin.Context) {
	r, err := h.Registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.failRoles(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handlers) CreateRole(c *gin.Context) {
	u, ok := principal(c)
	if !ok {
		return
	}

	var draft roles.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		problem.Abort(c, http.StatusBadRequest, problem.CodeValidationError, "request body must be JSON")
		return
	}

	r, err := h.Registry.Create(c.Request.Context(), u.ID, draft)
	if err != nil {
		h.failRoles(c, err)
		return
	}

	h.record(c, u, audit.Entry{
		Action:       "role.create",
		ResourceType: "role",
		ResourceID:   r.ID,
		Details:      map[string]any{"name": r.Name, "scope": string(r.Scope)},
	})
	c.JSON(http.StatusCreated, r)
}

type updateRoleRequest struct {
	roles.Draft
	ExpectedVersion int `json:"expectedVersion"`
}

func (h *Handlers) UpdateRole(c *gin.Context) {
	u, ok := principal(c)
	if !ok {
		return
	}

	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		problem.Abort(c, http.StatusBadRequest, problem.CodeValidationError, "request body must be JSON")
		return
	}

	r, err := h.Registry.Update(c.Request.Context(), u.ID, c.Param("id"), req.ExpectedVersion, req.Draft)
	if err != nil {
		h.failRoles(c, err)
		return
	}

	h.record(c, u, audit.Entry{
		Action:       "role.update",
		ResourceType: "role",
		ResourceID:   r.ID,
		Details:      map[string]any{"name": r.Name, "version": r.Version},
	})
	c.JSON(http.StatusOK, r)
}

func (h *Handlers) DeleteRole(c *gin.Context) {
	u, ok := principal(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := h.Registry.Delete(c.Request.Context(), id); err != nil {
		h.failRoles(c, err)
		return
	}

	h.record(c, u, audit.Entry{
		Action:       "role.delete",
		ResourceType: "role",
		ResourceID:   id,
	})
	c.Status(http.StatusNoContent)
}

type exportRolesRequest struct {
	RoleIDs []string `json:"roleIds"`
}

// ExportRoles packages the selected roles as a portable document.
func (h *Handlers) ExportRoles(c *gin.Context) {
	u, ok := principal(c)
	if !ok {
		return
	}

	var req exportRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.RoleIDs) == 0 {
		problem.Abort(c, http.StatusBadRequest, problem.CodeValidationError, "roleIds must be a non-empty array")
		return
	}

	doc, err := h.Registry.Export(c.Request.Context(), req.RoleIDs)
	if err != nil {
		h.failRoles(c, err)
		return
	}

	h.record(c, u, audit.Entry{
		Action:       "roles.export",
		ResourceType: "role",
		Details:      map[string]any{"requested": len(req.RoleIDs), "exported": len(doc.Roles)},
	})
	c.JSON(http.StatusOK, doc)
}

type importRolesRequest struct {
	Roles              []roles.Draft            `json:"roles"`
	ConflictResolution roles.ConflictResolution `json:"conflictResolution"`
}

// ImportRoles applies an export document with the chosen conflict resolution.
func (h *Handlers) ImportRoles(c *gin.Context) {
	u, ok := principal(c)
	if !ok {
		return
	}

	var req importRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		problem.Abort(c, http.StatusBadRequest, problem.CodeValidationError, "request body must be JSON")
		return
	}
	if len(req.Roles) == 0 {
		problem.Abort(c, http.StatusBadRequest, problem.CodeValidationError, "roles must be a non-empty array")
		return
	}

	sum, err := h.Registry.Import(c.Request.Context(), u.ID,
		roles.ExportDocument{Roles: req.Roles}, req.ConflictResolution)
	if err != nil {
		h.failRoles(c, err)
		return
	}

	status := audit.StatusSuccess
	if len(sum.Errors) > 0 {
		status = audit.StatusError
	}
	h.record(c, u, audit.Entry{
		Action:       "roles.import",
		ResourceType: "role",
		Status:       status,
		Details: map[string]any{
			"imported":  sum.Imported,
			"skipped":   sum.Skipped,
			"conflicts": len(sum.Conflicts),
			"failed":    len(sum.Errors),
		},
	})
	c.JSON(http.StatusOK, sum)
}
