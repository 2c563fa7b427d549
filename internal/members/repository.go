package members

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the member does not exist.
var ErrNotFound = errors.New("members: not found")

// Repository provides PostgreSQL backed reads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns a member by id.
func (r *Repository) Get(ctx context.Context, id int64) (Member, error) {
	var m Member
	err := r.pool.QueryRow(ctx, `SELECT id, member_number, first_name, last_name, status, joined_at FROM members WHERE id = $1`, id).
		Scan(&m.ID, &m.MemberNumber, &m.FirstName, &m.LastName, &m.Status, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, ErrNotFound
		}
		return Member{}, fmt.Errorf("members: get %d: %w", id, err)
	}
	return m, nil
}

// ListActive returns members active as of the given year's end, ordered
// by member number. Distribution iterates this set.
func (r *Repository) ListActive(ctx context.Context, year int) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, member_number, first_name, last_name, status, joined_at
FROM members WHERE status = $1 AND EXTRACT(YEAR FROM joined_at) <= $2 ORDER BY member_number`, StatusActive, year)
	if err != nil {
		return nil, fmt.Errorf("members: list active: %w", err)
	}
	defer rows.Close()
	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.MemberNumber, &m.FirstName, &m.LastName, &m.Status, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("members: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
