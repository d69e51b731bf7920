package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"time"

	"appeals-platform/internal/rbac"
)

// Filename returns the download name for an export started at now.
func Filename(now time.Time) string {
	return "audit-logs-" + now.UTC().Format("2006-01-02") + ".csv"
}

var csvHeader = []string{
	"id", "createdAt", "userId", "userEmail", "action",
	"resourceType", "resourceId", "tenantType", "status",
	"route", "method", "ipAddress", "correlationId", "details",
}

// flushEvery bounds how many rows sit in the csv writer's buffer before we
// push them to the client, keeping memory flat on large exports.
const flushEvery = 500

// WriteCSV streams the filtered result set as CSV rows, redacted, oldest
// first. It never buffers the full set and stops as soon as ctx is cancelled.
func (s *Service) WriteCSV(ctx context.Context, principal rbac.AdminUser, f Filters, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	rows := 0
	err := s.ExportAll(ctx, principal, f, Sort{Field: "createdAt"}, func(e Entry) error {
		if err := cw.Write(csvRow(e)); err != nil {
			return err
		}
		rows++
		if rows%flushEvery == 0 {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

func csvRow(e Entry) []string {
	details := ""
	if e.Details != nil {
		if b, err := json.Marshal(e.Details); err == nil {
			details = string(b)
		}
	}
	return []string{
		e.ID,
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.UserID,
		e.UserEmail,
		e.Action,
		e.ResourceType,
		e.ResourceID,
		string(e.TenantType),
		string(e.Status),
		e.Route,
		e.Method,
		e.IPAddress,
		e.CorrelationID,
		details,
	}
}
