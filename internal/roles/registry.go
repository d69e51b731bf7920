package roles

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"appeals-platform/internal/ids"
	"appeals-platform/internal/rbac"
)

const (
	maxNameLen        = 80
	maxDescriptionLen = 500
)

// Registry owns role lifecycle: validation, name uniqueness within a scope key
// and optimistic versioning. All writes go through it.
type Registry struct {
	repo    Repository
	catalog *rbac.Catalog

	clock func() time.Time
	newID func() string
}

func NewRegistry(repo Repository, catalog *rbac.Catalog) *Registry {
	return &Registry{
		repo:    repo,
		catalog: catalog,
		clock:   func() time.Time { return time.Now().UTC() },
		newID:   ids.New,
	}
}

// WithClock overrides time for tests.
func (g *Registry) WithClock(clock func() time.Time) *Registry {
	g.clock = clock
	return g
}

func (g *Registry) Get(ctx context.Context, id string) (Role, error) {
	return g.repo.Get(ctx, id)
}

// List returns every role sorted by scope key then name.
func (g *Registry) List(ctx context.Context) ([]Role, error) {
	out, err := g.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScopeKey() != out[j].ScopeKey() {
			return out[i].ScopeKey() < out[j].ScopeKey()
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Create validates the draft, enforces name uniqueness within the scope key
// and stores the role at version 1.
func (g *Registry) Create(ctx context.Context, actor string, d Draft) (Role, error) {
	if err := g.validateDraft(d, true); err != nil {
		return Role{}, err
	}
	if err := g.checkNameFree(ctx, d, ""); err != nil {
		return Role{}, err
	}

	r := Role{
		ID:           g.newID(),
		Name:         strings.TrimSpace(d.Name),
		Description:  strings.TrimSpace(d.Description),
		Scope:        d.Scope,
		TenantType:   d.TenantType,
		Permissions:  normalizePermissions(d.Permissions),
		Version:      1,
		LastEditor:   actor,
		LastModified: g.clock(),
	}
	if err := g.repo.Insert(ctx, r); err != nil {
		return Role{}, err
	}
	return r, nil
}

// Update applies the draft to an existing role using compare-and-swap on the
// version the caller last saw. A stale expectedVersion yields
// ErrVersionConflict so the caller can reload and retry.
func (g *Registry) Update(ctx context.Context, actor, id string, expectedVersion int, d Draft) (Role, error) {
	current, err := g.repo.Get(ctx, id)
	if err != nil {
		return Role{}, err
	}
	// Change notes are mandatory only for the first version; the role already
	// exists here.
	if err := g.validateDraft(d, false); err != nil {
		return Role{}, err
	}
	if current.Version != expectedVersion {
		return Role{}, ErrVersionConflict
	}
	if err := g.checkNameFree(ctx, d, id); err != nil {
		return Role{}, err
	}

	next := current
	next.Name = strings.TrimSpace(d.Name)
	next.Description = strings.TrimSpace(d.Description)
	next.Scope = d.Scope
	next.TenantType = d.TenantType
	next.Permissions = normalizePermissions(d.Permissions)
	next.Version = expectedVersion + 1
	next.LastEditor = actor
	next.LastModified = g.clock()

	if err := g.repo.UpdateCAS(ctx, next, expectedVersion); err != nil {
		return Role{}, err
	}
	return next, nil
}

func (g *Registry) Delete(ctx context.Context, id string) error {
	return g.repo.Delete(ctx, id)
}

// validateDraft accumulates every violated field so the caller sees the full
// picture in one round trip.
func (g *Registry) validateDraft(d Draft, requireNotes bool) error {
	verr := &ValidationError{}

	name := strings.TrimSpace(d.Name)
	switch {
	case name == "":
		verr.add("name", "is required")
	case len(name) > maxNameLen:
		verr.add("name", "must be at most 80 characters")
	}
	switch desc := strings.TrimSpace(d.Description); {
	case desc == "":
		verr.add("description", "is required")
	case len(desc) > maxDescriptionLen:
		verr.add("description", "must be at most 500 characters")
	}

	switch {
	case !ValidScope(d.Scope):
		verr.add("scope", "must be global or tenant")
	case d.Scope == ScopeTenant && !rbac.ValidTenantType(d.TenantType):
		verr.add("tenantType", "must be RESIDENTIAL or COMMERCIAL for tenant-scoped roles")
	case d.Scope == ScopeGlobal && d.TenantType != "":
		verr.add("tenantType", "must be empty for global roles")
	}

	if len(d.Permissions) == 0 {
		verr.add("permissions", "at least one permission is required")
	} else {
		missing, system := g.catalog.ValidateSet(d.Permissions, d.Scope == ScopeGlobal)
		if len(missing) > 0 {
			verr.add("permissions", "unknown permission ids: "+strings.Join(missing, ", "))
		}
		if len(system) > 0 {
			verr.add("permissions", "system permissions require global scope: "+strings.Join(system, ", "))
		}
	}

	if requireNotes && strings.TrimSpace(d.ChangeNotes) == "" {
		verr.add("changeNotes", "is required")
	}

	return verr.orNil()
}

// checkNameFree enforces name uniqueness within the scope key, ignoring the
// role being updated.
func (g *Registry) checkNameFree(ctx context.Context, d Draft, selfID string) error {
	existing, err := g.repo.FindByName(ctx, strings.TrimSpace(d.Name), d.Scope, d.TenantType)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID == selfID {
		return nil
	}
	return ErrNameTaken
}

func normalizePermissions(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
