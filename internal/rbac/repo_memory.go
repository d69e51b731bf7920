package rbac

import (
	"context"
	"strings"
	"sync"
)

// MemoryAdminRepo is a simple in-memory admin store useful for tests and
// early development. Not intended for production.
type MemoryAdminRepo struct {
	mu    sync.RWMutex
	byID  map[string]AdminUser
	email map[string]string
}

func NewMemoryAdminRepo(users ...AdminUser) *MemoryAdminRepo {
	r := &MemoryAdminRepo{
		byID:  make(map[string]AdminUser),
		email: make(map[string]string),
	}
	for _, u := range users {
		r.Put(u)
	}
	return r
}

func (r *MemoryAdminRepo) Put(u AdminUser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u.Permissions = nil // derived only, never stored
	r.byID[u.ID] = u
	r.email[strings.ToLower(u.Email)] = u.ID
}

func (r *MemoryAdminRepo) FindByID(ctx context.Context, id string) (AdminUser, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return AdminUser{}, ErrNotFound
	}
	return u, nil
}

func (r *MemoryAdminRepo) FindByEmail(ctx context.Context, email string) (AdminUser, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.email[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return AdminUser{}, ErrNotFound
	}
	return r.byID[id], nil
}
