package audit

import (
	"context"
	"errors"
	"time"

	"appeals-platform/internal/rbac"
)

// Status classifies the outcome of the recorded action.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusDenied  Status = "DENIED"
	StatusError   Status = "ERROR"
)

func ValidStatus(s Status) bool {
	switch s {
	case StatusSuccess, StatusDenied, StatusError:
		return true
	default:
		return false
	}
}

// Entry is an immutable, append-only audit record.
//
// Invariants:
// - Entries are never updated; retention is the only deletion path.
// - CorrelationID groups all entries produced by one logical request.
// - TenantType is empty for actions not bound to a tenant partition.
type Entry struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	UserEmail     string          `json:"userEmail,omitempty"`
	Action        string          `json:"action"`
	ResourceType  string          `json:"resourceType,omitempty"`
	ResourceID    string          `json:"resourceId,omitempty"`
	TenantType    rbac.TenantType `json:"tenantType,omitempty"`
	Status        Status          `json:"status,omitempty"`
	Route         string          `json:"route,omitempty"`
	Method        string          `json:"method,omitempty"`
	IPAddress     string          `json:"ipAddress,omitempty"`
	UserAgent     string          `json:"userAgent,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Details       map[string]any  `json:"details,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Filters narrow a query. All set fields are combined with AND.
type Filters struct {
	// Tenant is an exact tenant partition, or rbac.TenantAll for no restriction.
	Tenant string
	// Actor matches case-insensitively as a substring of UserEmail or UserID.
	Actor string
	// Action is an exact match.
	Action string
	// RoutePrefix matches the beginning of Route.
	RoutePrefix string
	// Status is an exact match.
	Status Status
	// CorrelationID is an exact match.
	CorrelationID string
	// From and To bound CreatedAt inclusively; zero values mean unbounded.
	From time.Time
	To   time.Time
}

// Sort picks the ordering of a query result.
type Sort struct {
	Field      string // createdAt | action | status; default createdAt
	Descending bool
}

// Page is offset pagination. Limit is clamped by the service.
type Page struct {
	Limit  int
	Offset int
}

// Normalize applies the default and maximum page limits.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

var (
	ErrInvalidEntry = errors.New("audit: invalid entry")
)

// Repository is the persistence contract for audit entries.
// It is append-only; PurgeOlderThan exists solely for retention enforcement.
type Repository interface {
	Append(ctx context.Context, e Entry) error
	// Query returns one page plus the total match count.
	Query(ctx context.Context, f Filters, s Sort, p Page) ([]Entry, int, error)
	// Stream sends every match through fn in sort order, stopping on the first
	// fn error or context cancellation.
	Stream(ctx context.Context, f Filters, s Sort, fn func(Entry) error) error
	// PurgeOlderThan deletes entries created before cutoff, returning the count.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
