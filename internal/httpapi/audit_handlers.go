package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"appeals-platform/internal/audit"
	"appeals-platform/internal/problem"
	"appeals-platform/internal/rbac"
	"appeals-platform/pkg/logger"
	"appeals-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	retentionHeader = "X-Audit-Retention-Days"

	// exportCapTTL bounds how long a crashed export can hold a slot.
	exportCapTTL = 5 * time.Minute
)

// parseAuditFilters reads the shared query parameters of the list and export
// endpoints. It returns a prepared validation problem when input is malformed.
func parseAuditFilters(c *gin.Context) (audit.Filters, []string) {
	var (
		f    audit.Filters
		errs []string
	)

	if tenant := c.Query("tenant"); tenant != "" {
		if tenant != rbac.TenantAll && !rbac.ValidTenantType(rbac.TenantType(tenant)) {
			errs = append(errs, "tenant: must be RESIDENTIAL, COMMERCIAL or ALL")
		}
		f.Tenant = tenant
	}
	f.Actor = c.Query("actor")
	f.Action = c.Query("action")
	f.RoutePrefix = c.Query("route")
	f.CorrelationID = c.Query("correlationId")

	if status := c.Query("status"); status != "" {
		s := audit.Status(strings.ToUpper(status))
		if !audit.ValidStatus(s) {
			errs = append(errs, "status: must be SUCCESS, DENIED or ERROR")
		}
		f.Status = s
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			errs = append(errs, "from: must be an RFC 3339 timestamp")
		}
		f.From = t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			errs = append(errs, "to: must be an RFC 3339 timestamp")
		}
		f.To = t
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		errs = append(errs, "to: must not precede from")
	}
	return f, errs
}

func parseSortAndPage(c *gin.Context) (audit.Sort, audit.Page) {
	s := audit.Sort{Field: c.Query("sortBy")}
	switch strings.ToLower(c.Query("sortDir")) {
	case "asc":
		s.Descending = false
	case "desc", "":
		s.Descending = true
	}

	var p audit.Page
	if v := c.Query("limit"); v != "" {
		p.Limit, _ = strconv.Atoi(v)
	}
	if v := c.Query("offset"); v != "" {
		p.Offset, _ = strconv.Atoi(v)
	}
	return s, p
}

// ListAuditLogs serves the filtered, paginated audit view.
func (h *Handlers) ListAuditLogs(c *gin.Context) {
	u, ok := principal(c)
	if !ok {
		return
	}

	f, errs := parseAuditFilters(c)
	if len(errs) > 0 {
		p := problem.New(http.StatusBadRequest, problem.CodeValidationError, "one or more query parameters are invalid")
		p.Errors = errs
		problem.AbortProblem(c, p)
		return
	}
	sort, page := parseSortAndPage(c)
	page = page.Normalize()

	entries, total, err := h.Audit.Query(c.Request.Context(), u, f, sort, page)
	if err != nil {
		h.failUpstream(c, err)
		return
	}

	retention := h.Cfg.Audit.RetentionDays
	c.Header(retentionHeader, strconv.Itoa(retention))
	c.JSON(http.StatusOK, gin.H{
		"logs":          entries,
		"total":         total,
		"limit":         page.Limit,
		"offset":        page.Offset,
		"retentionDays": retention,
	})
}

// ExportAuditLogs streams the filtered set as a CSV download. A per-admin
// concurrency cap in redis keeps one user from monopolizing export capacity.
func (h *Handlers) ExportAuditLogs(c *gin.Context) {
	u, ok := principal(c)
	if !ok {
		return
	}

	f, errs := parseAuditFilters(c)
	if len(errs) > 0 {
		p := problem.New(http.StatusBadRequest, problem.CodeValidationError, "one or more query parameters are invalid")
		p.Errors = errs
		problem.AbortProblem(c, p)
		return
	}

	capKey := "audit:export:cap:" + u.ID
	acquired, err := utils.AcquireConcurrencyCap(c.Request.Context(), h.Redis, capKey,
		h.Cfg.Audit.ExportMaxConcurrent, exportCapTTL)
	if err != nil {
		h.failUpstream(c, err)
		return
	}
	if !acquired {
		c.Header("Retry-After", "30")
		problem.Abort(c, http.StatusTooManyRequests, problem.CodeRateLimited,
			"export limit reached for this account; wait for a running export to finish")
		return
	}
	defer func() {
		// The request context may already be cancelled (client gone); release
		// on a detached context so the slot is always returned.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := utils.ReleaseConcurrencyCap(releaseCtx, h.Redis, capKey); err != nil {
			logger.FromGin(c).Error("export cap release failed", "err", err)
		}
	}()

	now := time.Now().UTC()
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="`+audit.Filename(now)+`"`)
	c.Header(retentionHeader, strconv.Itoa(h.Cfg.Audit.RetentionDays))
	c.Status(http.StatusOK)

	if err := h.Audit.WriteCSV(c.Request.Context(), u, f, c.Writer); err != nil {
		// Headers are already on the wire; all we can do is log and cut the stream.
		logger.FromGin(c).Error("audit export aborted", "err", err)
		h.record(c, u, audit.Entry{Action: "audit.export", Status: audit.StatusError})
		return
	}

	h.record(c, u, audit.Entry{Action: "audit.export", Status: audit.StatusSuccess})
}

type traceResponse struct {
	CorrelationID string        `json:"correlationId"`
	Reference     *time.Time    `json:"reference,omitempty"`
	Fragment      string        `json:"fragment"`
	Entries       []audit.Entry `json:"entries"`
}

// TraceCorrelation returns every audit entry tied to one correlation id,
// optionally windowed around a reference timestamp.
func (h *Handlers) TraceCorrelation(c *gin.Context) {
	u, ok := principal(c)
	if !ok {
		return
	}

	cid := c.Param("correlationId")
	var ref time.Time
	if v := c.Query("reference"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			problem.Abort(c, http.StatusBadRequest, problem.CodeValidationError,
				"reference must be an RFC 3339 timestamp")
			return
		}
		ref = t
	}

	h.writeTrace(c, u, cid, ref)
}

func (h *Handlers) writeTrace(c *gin.Context, u rbac.AdminUser, cid string, ref time.Time) {
	entries, err := h.Audit.Trace(c.Request.Context(), u, cid, ref)
	if err != nil {
		h.failUpstream(c, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}

	resp := traceResponse{
		CorrelationID: cid,
		Fragment:      audit.FragmentLink(cid),
		Entries:       entries,
	}
	if !ref.IsZero() {
		resp.Reference = &ref
	}
	c.JSON(http.StatusOK, resp)
}

type shareTraceRequest struct {
	CorrelationID string     `json:"correlationId"`
	Reference     *time.Time `json:"reference,omitempty"`
}

// ShareTrace mints an opaque token that reproduces a trace view later.
func (h *Handlers) ShareTrace(c *gin.Context) {
	u, ok := principal(c)
	if !ok {
		return
	}

	var req shareTraceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CorrelationID == "" {
		problem.Abort(c, http.StatusBadRequest, problem.CodeValidationError, "correlationId is required")
		return
	}

	st := audit.SharedTrace{CorrelationID: req.CorrelationID, CreatedBy: u.ID}
	if req.Reference != nil {
		st.Reference = req.Reference.UTC()
	}

	token, err := h.Shares.Create(c.Request.Context(), st)
	if err != nil {
		h.failUpstream(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token":    token,
		"url":      "/admin/audit/share/" + token,
		"fragment": audit.FragmentLink(req.CorrelationID),
	})
}

// ResolveSharedTrace replays the trace pinned behind a share token.
func (h *Handlers) ResolveSharedTrace(c *gin.Context) {
	u, ok := principal(c)
	if !ok {
		return
	}

	st, err := h.Shares.Resolve(c.Request.Context(), c.Param("token"))
	if errors.Is(err, audit.ErrShareLinkNotFound) {
		problem.Abort(c, http.StatusNotFound, problem.CodeNotFound, "share link not found or expired")
		return
	}
	if err != nil {
		h.failUpstream(c, err)
		return
	}

	h.writeTrace(c, u, st.CorrelationID, st.Reference)
}
