package audit

import (
	"context"
	"testing"
	"time"

	"appeals-platform/internal/rbac"

	"github.com/DATA-DOG/go-sqlmock"
)

func entryRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "user_email", "action", "resource_type", "resource_id",
		"tenant_type", "status", "route", "method", "ip_address", "user_agent",
		"correlation_id", "details", "created_at",
	})
}

func TestPostgresQueryBuildsScopedFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`select count\(\*\) from audit_entries where coalesce\(tenant_type, ''\) = \$1 and action = \$2`).
		WithArgs("RESIDENTIAL", "role.update").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	mock.ExpectQuery(`from audit_entries where coalesce\(tenant_type, ''\) = \$1 and action = \$2 order by created_at desc, id desc limit \$3 offset \$4`).
		WithArgs("RESIDENTIAL", "role.update", 50, 0).
		WillReturnRows(entryRows().AddRow(
			"01ARZ3NDEKTSV4RRFFQ69G5FAV", "admin-1", "jane.roe@example.com",
			"role.update", "role", "r-1", "RESIDENTIAL", "SUCCESS",
			"/admin/roles/r-1", "PATCH", "203.0.113.42", "", "req-1",
			[]byte(`{"note":"ok"}`), time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)))

	repo := NewPostgresRepository(db)
	entries, total, err := repo.Query(context.Background(),
		Filters{Tenant: string(rbac.TenantResidential), Action: "role.update"},
		Sort{Field: "createdAt", Descending: true},
		Page{Limit: 50})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 1 || len(entries) != 1 {
		t.Fatalf("total=%d len=%d", total, len(entries))
	}
	if entries[0].Details["note"] != "ok" {
		t.Fatalf("details = %v", entries[0].Details)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`insert into audit_entries`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresRepository(db)
	e := Entry{
		ID:        "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		UserID:    "admin-1",
		Action:    "role.create",
		Status:    StatusSuccess,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Append(context.Background(), e); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresPurgeOlderThan(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	cutoff := time.Now().UTC().AddDate(0, 0, -180)
	mock.ExpectExec(`delete from audit_entries where created_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	repo := NewPostgresRepository(db)
	n, err := repo.PurgeOlderThan(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 7 {
		t.Fatalf("purged = %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
