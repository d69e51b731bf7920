package httpapi

import (
	"context"
	"log/slog"

	"appeals-platform/internal/audit"
	"appeals-platform/internal/rbac"
	"appeals-platform/pkg/logger"
)

// DenialLog feeds guard denials into the audit log, satisfying
// rbac.DenialRecorder without the guard importing the audit package.
type DenialLog struct {
	Audit *audit.Service
	Log   *slog.Logger
}

func (d DenialLog) RecordDenial(ctx context.Context, user rbac.AdminUser, code, route, method string) {
	e := audit.Entry{
		UserID:        user.ID,
		UserEmail:     user.Email,
		TenantType:    user.TenantType,
		Action:        "access.denied",
		Status:        audit.StatusDenied,
		Route:         route,
		Method:        method,
		CorrelationID: logger.RequestIDFrom(ctx),
		Details:       map[string]any{"code": code},
	}
	if err := d.Audit.Append(ctx, e); err != nil && d.Log != nil {
		d.Log.Error("denial audit append failed", "code", code, "err", err)
	}
}
