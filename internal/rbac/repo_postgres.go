package rbac

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// PostgresAdminRepo reads admin accounts from the admin_users table.
//
// Expected schema:
//
//	admin_users(id text pk, email text unique, role text,
//	            tenant_type text null, password_hash text, created_at timestamptz)
type PostgresAdminRepo struct {
	db *sql.DB
}

func NewPostgresAdminRepo(db *sql.DB) *PostgresAdminRepo {
	return &PostgresAdminRepo{db: db}
}

var _ AdminUserRepo = (*PostgresAdminRepo)(nil)

const adminUserColumns = `id, email, role, coalesce(tenant_type, ''), password_hash, created_at`

func (r *PostgresAdminRepo) FindByID(ctx context.Context, id string) (AdminUser, error) {
	row := r.db.QueryRowContext(ctx, `
		select `+adminUserColumns+`
		from admin_users
		where id = $1
	`, id)
	return scanAdminUser(row)
}

func (r *PostgresAdminRepo) FindByEmail(ctx context.Context, email string) (AdminUser, error) {
	row := r.db.QueryRowContext(ctx, `
		select `+adminUserColumns+`
		from admin_users
		where lower(email) = lower($1)
	`, strings.TrimSpace(email))
	return scanAdminUser(row)
}

func scanAdminUser(row *sql.Row) (AdminUser, error) {
	var (
		u      AdminUser
		tenant string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Role, &tenant, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AdminUser{}, ErrNotFound
	}
	if err != nil {
		return AdminUser{}, err
	}
	u.TenantType = TenantType(tenant)
	return u, nil
}
