package problem

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes returned in the envelope. Keep these stable; clients switch on
// them.
const (
	CodeAuthenticationRequired  = "AUTHENTICATION_REQUIRED"
	CodeAdminAccessRequired     = "ADMIN_ACCESS_REQUIRED"
	CodeAdminContextRequired    = "ADMIN_CONTEXT_REQUIRED"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeInsufficientRole        = "INSUFFICIENT_ROLE"
	CodeMissingTenantScope      = "MISSING_TENANT_SCOPE"
	CodeCrossTenantAccessDenied = "CROSS_TENANT_ACCESS_DENIED"
	CodeValidationError         = "VALIDATION_ERROR"
	CodeConflict                = "CONFLICT"
	CodeNotFound                = "NOT_FOUND"
	CodeRateLimited             = "RATE_LIMITED"
	CodeUpstreamFailure         = "UPSTREAM_FAILURE"
)

var titles = map[string]string{
	CodeAuthenticationRequired:  "Authentication required",
	CodeAdminAccessRequired:     "Admin access required",
	CodeAdminContextRequired:    "Admin context required",
	CodeInsufficientPermissions: "Insufficient permissions",
	CodeInsufficientRole:        "Insufficient role",
	CodeMissingTenantScope:      "Missing tenant scope",
	CodeCrossTenantAccessDenied: "Cross-tenant access denied",
	CodeValidationError:         "Validation failed",
	CodeConflict:                "Conflict",
	CodeNotFound:                "Not found",
	CodeRateLimited:             "Too many requests",
	CodeUpstreamFailure:         "Upstream failure",
}

// Problem is the uniform error envelope for every denial and validation
// failure. correlationId ties the error back to the request trace; for
// UPSTREAM_FAILURE it is the only diagnostic detail clients receive.
type Problem struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail,omitempty"`
	Instance      string `json:"instance,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	Code          string `json:"code"`

	// Errors carries per-field messages for VALIDATION_ERROR so clients can
	// surface every violation at once.
	Errors []string `json:"errors,omitempty"`
}

// New builds an envelope for the given code.
func New(status int, code, detail string) Problem {
	title := titles[code]
	if title == "" {
		title = http.StatusText(status)
	}
	return Problem{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
		Code:   code,
	}
}

// Abort writes the envelope and stops the handler chain. Instance and
// correlationId are filled from the request.
func Abort(c *gin.Context, status int, code, detail string) {
	AbortProblem(c, New(status, code, detail))
}

// AbortProblem writes a prepared envelope, filling Instance and CorrelationID
// from the request.
func AbortProblem(c *gin.Context, p Problem) {
	p.Instance = c.Request.URL.Path
	p.CorrelationID = c.Writer.Header().Get("X-Request-Id")
	c.AbortWithStatusJSON(p.Status, p)
}
