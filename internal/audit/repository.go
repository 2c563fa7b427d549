package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository reads the audit_log table.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const entryColumns = `id, table_name, operation, record_id, old_value, new_value, actor, occurred_at`

// Window returns one page of entries, newest first.
func (r *PgRepository) Window(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	where, args := buildWhere(filters)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM audit_log%s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		entryColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline window: %w", err)
	}
	return scanEntries(rows)
}

// All returns every matching entry, newest first.
func (r *PgRepository) All(ctx context.Context, filters Filters) ([]Entry, error) {
	where, args := buildWhere(filters)
	query := fmt.Sprintf(`SELECT %s FROM audit_log%s ORDER BY occurred_at DESC, id DESC`, entryColumns, where)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline all: %w", err)
	}
	return scanEntries(rows)
}

func buildWhere(filters Filters) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if !filters.From.IsZero() {
		add("occurred_at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		add("occurred_at <= $%d", filters.To)
	}
	if filters.Actor != "" {
		add("actor = $%d", filters.Actor)
	}
	if filters.Table != "" {
		add("table_name = $%d", filters.Table)
	}
	if filters.Op != "" {
		add("operation = $%d", filters.Op)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(&e.ID, &e.Table, &e.Op, &e.RecordID, &e.OldValue, &e.NewValue, &e.Actor, &e.At)
		if err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
