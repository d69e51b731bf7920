package rbac

import "context"

type adminCtxKey struct{}

// WithAdminUser attaches the resolved admin (permissions included) to the
// request context. Guards call this once per request after authorization.
func WithAdminUser(ctx context.Context, u AdminUser) context.Context {
	return context.WithValue(ctx, adminCtxKey{}, &u)
}

// AdminFromContext extracts the resolved admin from the context.
func AdminFromContext(ctx context.Context) (AdminUser, bool) {
	if ctx == nil {
		return AdminUser{}, false
	}
	v, ok := ctx.Value(adminCtxKey{}).(*AdminUser)
	if !ok || v == nil {
		return AdminUser{}, false
	}
	return *v, true
}
