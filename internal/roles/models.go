package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"appeals-platform/internal/rbac"
)

// Scope describes where a role definition applies.
type Scope string

const (
	// ScopeGlobal roles apply platform-wide and may carry system permissions.
	ScopeGlobal Scope = "global"
	// ScopeTenant roles are bound to a single tenant partition.
	ScopeTenant Scope = "tenant"
)

func ValidScope(s Scope) bool {
	return s == ScopeGlobal || s == ScopeTenant
}

// Role is a named bundle of permissions managed through the admin console.
//
// Invariants:
// - Name is unique within its scope key (scope + tenantType).
// - Version starts at 1 and increments by exactly 1 on every write.
// - Permissions only reference ids present in the catalog.
type Role struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Scope        Scope           `json:"scope"`
	TenantType   rbac.TenantType `json:"tenantType,omitempty"`
	Permissions  []string        `json:"permissions"`
	Version      int             `json:"version"`
	LastEditor   string          `json:"lastEditor"`
	LastModified time.Time       `json:"lastModified"`
}

// ScopeKey is the uniqueness domain for role names.
func (r Role) ScopeKey() string {
	return scopeKey(r.Scope, r.TenantType)
}

func scopeKey(s Scope, t rbac.TenantType) string {
	return string(s) + "/" + string(t)
}

// Draft carries the caller-supplied fields of a role create or update.
type Draft struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Scope       Scope           `json:"scope"`
	TenantType  rbac.TenantType `json:"tenantType,omitempty"`
	Permissions []string        `json:"permissions"`
	ChangeNotes string          `json:"changeNotes"`
}

var (
	ErrNotFound        = errors.New("roles: not found")
	ErrVersionConflict = errors.New("roles: version conflict")
	ErrNameTaken       = errors.New("roles: name already in use")
)

// FieldError names a single violated field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError enumerates every violated field at once so the caller can
// render all of them in a single response.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "roles: validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Repository is the persistence contract for role definitions.
type Repository interface {
	Get(ctx context.Context, id string) (Role, error)
	// FindByName resolves a role by its name within a scope key.
	FindByName(ctx context.Context, name string, scope Scope, tenant rbac.TenantType) (Role, error)
	List(ctx context.Context) ([]Role, error)
	Insert(ctx context.Context, r Role) error
	// UpdateCAS persists r only if the stored version equals expectedVersion,
	// returning ErrVersionConflict otherwise.
	UpdateCAS(ctx context.Context, r Role, expectedVersion int) error
	Delete(ctx context.Context, id string) error
}
