package audit

import (
	"context"
	"strings"
	"time"

	"appeals-platform/internal/ids"
	"appeals-platform/internal/rbac"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// Service owns the audit read and write paths. Reads are always scoped to the
// caller's tenant before any user-supplied filter is applied, so a tenant
// admin can never widen their view by crafting filters.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides time for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Append records an entry, assigning id and timestamp when unset.
// Callers should treat audit writes as best-effort on non-critical paths.
func (s *Service) Append(ctx context.Context, e Entry) error {
	if e.UserID == "" || e.Action == "" {
		return ErrInvalidEntry
	}
	if e.Status == "" {
		e.Status = StatusSuccess
	}
	if !ValidStatus(e.Status) {
		return ErrInvalidEntry
	}
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock()
	}
	return s.repo.Append(ctx, e)
}

// Query returns one page of matches plus the total count.
// The principal's tenant scope is forced onto the filter set first.
func (s *Service) Query(ctx context.Context, principal rbac.AdminUser, f Filters, sort Sort, page Page) ([]Entry, int, error) {
	f = scopeFilters(principal, f)
	sort = normalizeSort(sort)
	page = page.Normalize()

	entries, total, err := s.repo.Query(ctx, f, sort, page)
	if err != nil {
		return nil, 0, err
	}
	for i := range entries {
		entries[i] = RedactEntry(entries[i])
	}
	return entries, total, nil
}

// ExportAll streams every match through fn without pagination, with redaction
// applied per entry. It stops on context cancellation or the first fn error.
func (s *Service) ExportAll(ctx context.Context, principal rbac.AdminUser, f Filters, sort Sort, fn func(Entry) error) error {
	f = scopeFilters(principal, f)
	sort = normalizeSort(sort)

	return s.repo.Stream(ctx, f, sort, func(e Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(RedactEntry(e))
	})
}

// PurgeOlderThan enforces the retention window.
func (s *Service) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.PurgeOlderThan(ctx, cutoff)
}

// scopeFilters applies the principal's tenant restriction before honoring any
// user-supplied tenant filter. Superadmins and auditors see all partitions
// unless they narrow the view themselves.
func scopeFilters(principal rbac.AdminUser, f Filters) Filters {
	if principal.Role == rbac.RoleTenantAdmin {
		f.Tenant = string(principal.TenantType)
		return f
	}
	if f.Tenant == "" {
		f.Tenant = rbac.TenantAll
	}
	return f
}

func normalizeSort(s Sort) Sort {
	switch strings.TrimSpace(s.Field) {
	case "action", "status":
		// allowed as-is
	case "", "createdAt":
		if s.Field == "" {
			s.Descending = true
		}
		s.Field = "createdAt"
	default:
		s.Field = "createdAt"
		s.Descending = true
	}
	return s
}
