package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"
)

func TestFilename(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	if got := Filename(now); got != "audit-logs-2026-03-10.csv" {
		t.Fatalf("filename = %q", got)
	}
}

func TestWriteCSV(t *testing.T) {
	svc := seededService(t,
		Entry{
			UserID:        "admin-1",
			UserEmail:     "jo.doe@example.com",
			Action:        "role.update",
			ResourceType:  "role",
			ResourceID:    "r-1",
			Status:        StatusSuccess,
			Route:         "/admin/roles/r-1",
			Method:        "PATCH",
			IPAddress:     "203.0.113.42",
			CorrelationID: "req-1",
			CreatedAt:     testBase,
		},
		Entry{Action: "role.delete", Status: StatusDenied, CreatedAt: testBase.Add(time.Minute)},
	)

	var buf bytes.Buffer
	if err := svc.WriteCSV(context.Background(), superadmin(), Filters{}, &buf); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "id" || rows[0][1] != "createdAt" {
		t.Fatalf("header = %v", rows[0])
	}

	first := rows[1]
	if first[3] != "jo...oe@example.com" {
		t.Fatalf("email not redacted in csv: %q", first[3])
	}
	if first[11] != "203.0.113.0" {
		t.Fatalf("ip not masked in csv: %q", first[11])
	}
	if first[1] != "2026-03-10T12:00:00Z" {
		t.Fatalf("createdAt = %q", first[1])
	}

	// Streaming order is oldest first.
	if rows[1][4] != "role.update" || rows[2][4] != "role.delete" {
		t.Fatalf("unexpected order: %v / %v", rows[1][4], rows[2][4])
	}
}

func TestWriteCSVStopsOnCancelledContext(t *testing.T) {
	svc := seededService(t, Entry{}, Entry{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	if err := svc.WriteCSV(ctx, superadmin(), Filters{}, &buf); err == nil {
		t.Fatalf("expected cancellation error")
	}
}
