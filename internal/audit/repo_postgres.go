package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"appeals-platform/internal/rbac"
)

// PostgresRepository persists audit entries in the audit_entries table.
// The table is insert-only; retention purges are the single delete path.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const entryColumns = `id, user_id, coalesce(user_email, ''), action,
	coalesce(resource_type, ''), coalesce(resource_id, ''),
	coalesce(tenant_type, ''), status, coalesce(route, ''),
	coalesce(method, ''), coalesce(ip_address, ''), coalesce(user_agent, ''),
	coalesce(correlation_id, ''), details, created_at`

func (p *PostgresRepository) Append(ctx context.Context, e Entry) error {
	var details []byte
	if e.Details != nil {
		var err error
		details, err = json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("encode details: %w", err)
		}
	}
	_, err := p.db.ExecContext(ctx,
		`insert into audit_entries
		 (id, user_id, user_email, action, resource_type, resource_id,
		  tenant_type, status, route, method, ip_address, user_agent,
		  correlation_id, details, created_at)
		 values ($1, $2, nullif($3, ''), $4, nullif($5, ''), nullif($6, ''),
		         nullif($7, ''), $8, nullif($9, ''), nullif($10, ''),
		         nullif($11, ''), nullif($12, ''), nullif($13, ''), $14, $15)`,
		e.ID, e.UserID, e.UserEmail, e.Action, e.ResourceType, e.ResourceID,
		string(e.TenantType), string(e.Status), e.Route, e.Method, e.IPAddress,
		e.UserAgent, e.CorrelationID, nullableJSON(details), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (p *PostgresRepository) Query(ctx context.Context, f Filters, s Sort, pg Page) ([]Entry, int, error) {
	where, args := buildWhere(f)

	var total int
	if err := p.db.QueryRowContext(ctx,
		`select count(*) from audit_entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	q := `select ` + entryColumns + ` from audit_entries` + where +
		orderClause(s) +
		fmt.Sprintf(` limit $%d offset $%d`, len(args)+1, len(args)+2)
	rows, err := p.db.QueryContext(ctx, q, append(args, pg.Limit, pg.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (p *PostgresRepository) Stream(ctx context.Context, f Filters, s Sort, fn func(Entry) error) error {
	where, args := buildWhere(f)
	rows, err := p.db.QueryContext(ctx,
		`select `+entryColumns+` from audit_entries`+where+orderClause(s), args...)
	if err != nil {
		return fmt.Errorf("stream audit entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (p *PostgresRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`delete from audit_entries where created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit entries: %w", err)
	}
	return res.RowsAffected()
}

func buildWhere(f Filters) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Tenant != "" && f.Tenant != rbac.TenantAll {
		add(`coalesce(tenant_type, '') = $%d`, f.Tenant)
	}
	if f.Actor != "" {
		args = append(args, "%"+strings.ToLower(f.Actor)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			`(lower(coalesce(user_email, '')) like $%d or lower(user_id) like $%d)`, n, n))
	}
	if f.Action != "" {
		add(`action = $%d`, f.Action)
	}
	if f.RoutePrefix != "" {
		add(`coalesce(route, '') like $%d`, likePrefix(f.RoutePrefix))
	}
	if f.Status != "" {
		add(`status = $%d`, string(f.Status))
	}
	if f.CorrelationID != "" {
		add(`correlation_id = $%d`, f.CorrelationID)
	}
	if !f.From.IsZero() {
		add(`created_at >= $%d`, f.From)
	}
	if !f.To.IsZero() {
		add(`created_at <= $%d`, f.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " where " + strings.Join(conds, " and "), args
}

// likePrefix escapes LIKE metacharacters so a route prefix matches literally.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

func orderClause(s Sort) string {
	col := "created_at"
	switch s.Field {
	case "action":
		col = "action"
	case "status":
		col = "status"
	}
	dir := "asc"
	if s.Descending {
		dir = "desc"
	}
	// id is a ULID, so the tiebreak follows insertion order.
	return fmt.Sprintf(" order by %s %s, id %s", col, dir, dir)
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e       Entry
		details []byte
	)
	err := rows.Scan(&e.ID, &e.UserID, &e.UserEmail, &e.Action,
		&e.ResourceType, &e.ResourceID, &e.TenantType, &e.Status,
		&e.Route, &e.Method, &e.IPAddress, &e.UserAgent,
		&e.CorrelationID, &details, &e.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("scan audit entry: %w", err)
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return Entry{}, fmt.Errorf("decode details: %w", err)
		}
	}
	return e, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
