package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"appeals-platform/internal/audit"
	"appeals-platform/internal/auth"
	"appeals-platform/internal/config"
	"appeals-platform/internal/problem"
	"appeals-platform/internal/rbac"
	"appeals-platform/internal/roles"
	"appeals-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handlers bundles the console's HTTP endpoints with their dependencies.
// Route wiring lives in cmd/api/routes.go; this package only translates HTTP
// to service calls and service errors to the problem envelope.
type Handlers struct {
	Catalog  *rbac.Catalog
	Registry *roles.Registry
	Audit    *audit.Service
	Shares   *audit.ShareLinks
	Admins   rbac.AdminUserRepo
	Tokens   *auth.Manager
	Redis    *redis.Client
	Cfg      config.Config
	Log      *slog.Logger
}

// principal returns the admin resolved by the guard. A missing principal is a
// wiring error (route registered without the guard), not a client mistake.
func principal(c *gin.Context) (rbac.AdminUser, bool) {
	u, ok := rbac.AdminFromContext(c.Request.Context())
	if !ok {
		problem.Abort(c, http.StatusForbidden, problem.CodeAdminContextRequired,
			"handler invoked without admin resolution")
		return rbac.AdminUser{}, false
	}
	return u, true
}

// failRoles maps role-registry errors onto the envelope.
func (h *Handlers) failRoles(c *gin.Context, err error) {
	var verr *roles.ValidationError
	switch {
	case errors.As(err, &verr):
		p := problem.New(http.StatusBadRequest, problem.CodeValidationError, "one or more fields are invalid")
		for _, f := range verr.Fields {
			p.Errors = append(p.Errors, f.Field+": "+f.Message)
		}
		problem.AbortProblem(c, p)
	case errors.Is(err, roles.ErrNotFound):
		problem.Abort(c, http.StatusNotFound, problem.CodeNotFound, "role does not exist")
	case errors.Is(err, roles.ErrVersionConflict):
		problem.Abort(c, http.StatusConflict, problem.CodeConflict,
			"the role changed since it was loaded; reload and retry")
	case errors.Is(err, roles.ErrNameTaken):
		problem.Abort(c, http.StatusConflict, problem.CodeConflict,
			"a role with this name already exists in the scope")
	default:
		h.failUpstream(c, err)
	}
}

// failUpstream hides internal failure detail; the correlation id in the
// envelope is the only diagnostic handle clients get.
func (h *Handlers) failUpstream(c *gin.Context, err error) {
	logger.FromGin(c).Error("request failed", "err", err)
	problem.Abort(c, http.StatusInternalServerError, problem.CodeUpstreamFailure,
		"the request could not be completed; quote the correlation id when reporting")
}

// record appends an audit entry for an administrative action. Best-effort:
// a failed append is logged, never surfaced.
func (h *Handlers) record(c *gin.Context, u rbac.AdminUser, e audit.Entry) {
	e.UserID = u.ID
	e.UserEmail = u.Email
	e.TenantType = u.TenantType
	e.Route = c.Request.URL.Path
	e.Method = c.Request.Method
	e.IPAddress = c.ClientIP()
	e.UserAgent = c.Request.UserAgent()
	e.CorrelationID = logger.RequestIDFrom(c.Request.Context())

	if err := h.Audit.Append(c.Request.Context(), e); err != nil {
		logger.FromGin(c).Error("audit append failed", "action", e.Action, "err", err)
	}
}
