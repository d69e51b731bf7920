package roles

import (
	"context"
	"strings"
	"sync"

	"appeals-platform/internal/rbac"
)

// MemoryRepository is the in-memory Repository used by tests and local dev.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[string]Role
	byName map[string]string // scopeKey + lowercase name -> id
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[string]Role),
		byName: make(map[string]string),
	}
}

func nameKey(name string, scope Scope, tenant rbac.TenantType) string {
	return scopeKey(scope, tenant) + "/" + strings.ToLower(name)
}

func (m *MemoryRepository) Get(ctx context.Context, id string) (Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.byID[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return cloneRole(r), nil
}

func (m *MemoryRepository) FindByName(ctx context.Context, name string, scope Scope, tenant rbac.TenantType) (Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byName[nameKey(name, scope, tenant)]
	if !ok {
		return Role{}, ErrNotFound
	}
	return cloneRole(m.byID[id]), nil
}

func (m *MemoryRepository) List(ctx context.Context) ([]Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Role, 0, len(m.byID))
	for _, r := range m.byID {
		out = append(out, cloneRole(r))
	}
	return out, nil
}

func (m *MemoryRepository) Insert(ctx context.Context, r Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := nameKey(r.Name, r.Scope, r.TenantType)
	if _, taken := m.byName[key]; taken {
		return ErrNameTaken
	}
	m.byID[r.ID] = cloneRole(r)
	m.byName[key] = r.ID
	return nil
}

func (m *MemoryRepository) UpdateCAS(ctx context.Context, r Role, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.byID[r.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}

	newKey := nameKey(r.Name, r.Scope, r.TenantType)
	if id, taken := m.byName[newKey]; taken && id != r.ID {
		return ErrNameTaken
	}

	delete(m.byName, nameKey(current.Name, current.Scope, current.TenantType))
	m.byID[r.ID] = cloneRole(r)
	m.byName[newKey] = r.ID
	return nil
}

func (m *MemoryRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	delete(m.byName, nameKey(r.Name, r.Scope, r.TenantType))
	return nil
}

func cloneRole(r Role) Role {
	out := r
	out.Permissions = append([]string(nil), r.Permissions...)
	return out
}
