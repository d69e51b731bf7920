package roles

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"appeals-platform/internal/rbac"
	"appeals-platform/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresRepository persists roles in the roles table. Name uniqueness within
// a scope key is backed by a unique index on (scope, tenant_type, lower(name)).
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const roleColumns = `id, name, description, scope, coalesce(tenant_type, ''), permissions, version, last_editor, last_modified`

func (p *PostgresRepository) Get(ctx context.Context, id string) (Role, error) {
	row := p.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where id = $1`, id)
	return scanRole(row)
}

func (p *PostgresRepository) FindByName(ctx context.Context, name string, scope Scope, tenant rbac.TenantType) (Role, error) {
	row := p.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles
		 where scope = $1 and coalesce(tenant_type, '') = $2 and lower(name) = lower($3)`,
		string(scope), string(tenant), name)
	return scanRole(row)
}

func (p *PostgresRepository) List(ctx context.Context) ([]Role, error) {
	rows, err := p.db.QueryContext(ctx,
		`select `+roleColumns+` from roles order by scope, tenant_type, name`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresRepository) Insert(ctx context.Context, r Role) error {
	perms, err := json.Marshal(r.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`insert into roles (id, name, description, scope, tenant_type, permissions, version, last_editor, last_modified)
		 values ($1, $2, $3, $4, nullif($5, ''), $6, $7, $8, $9)`,
		r.ID, r.Name, r.Description, string(r.Scope), string(r.TenantType),
		perms, r.Version, r.LastEditor, r.LastModified)
	if isUniqueViolation(err) {
		return ErrNameTaken
	}
	if err != nil {
		return fmt.Errorf("insert role: %w", err)
	}
	return nil
}

func (p *PostgresRepository) UpdateCAS(ctx context.Context, r Role, expectedVersion int) error {
	perms, err := json.Marshal(r.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	// The CAS write and the follow-up read that classifies a zero-row update
	// must see the same snapshot, so both run in one transaction.
	return utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`update roles
			 set name = $3, description = $4, scope = $5, tenant_type = nullif($6, ''),
			     permissions = $7, version = $8, last_editor = $9, last_modified = $10
			 where id = $1 and version = $2`,
			r.ID, expectedVersion,
			r.Name, r.Description, string(r.Scope), string(r.TenantType),
			perms, r.Version, r.LastEditor, r.LastModified)
		if isUniqueViolation(err) {
			return ErrNameTaken
		}
		if err != nil {
			return fmt.Errorf("update role: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			// Distinguish a missing row from a stale version.
			row := tx.QueryRowContext(ctx, `select `+roleColumns+` from roles where id = $1`, r.ID)
			if _, err := scanRole(row); errors.Is(err, ErrNotFound) {
				return ErrNotFound
			}
			return ErrVersionConflict
		}
		return nil
	})
}

func (p *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (Role, error) {
	var (
		r     Role
		perms []byte
	)
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Scope, &r.TenantType,
		&perms, &r.Version, &r.LastEditor, &r.LastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return Role{}, ErrNotFound
	}
	if err != nil {
		return Role{}, fmt.Errorf("scan role: %w", err)
	}
	if err := json.Unmarshal(perms, &r.Permissions); err != nil {
		return Role{}, fmt.Errorf("decode permissions: %w", err)
	}
	return r, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
