package contributions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/platform/db"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/shared"
)

// Repository provides PostgreSQL backed persistence for contributions.
// The (member_id, month, year) uniqueness invariant is enforced by a
// unique index; violations surface as ErrDuplicate.
type Repository struct {
	pool     *pgxpool.Pool
	recorder *shared.AuditRecorder
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, recorder *shared.AuditRecorder) *Repository {
	return &Repository{pool: pool, recorder: recorder}
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{tx: tx, recorder: r.recorder})
	})
}

// ListForMember returns a member's contributions for a year in month
// order.
func (r *Repository) ListForMember(ctx context.Context, memberID int64, year int) ([]Contribution, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, member_id, month, year, amount::text, late_fee::text, posted_at, created_at
FROM contributions WHERE member_id = $1 AND year = $2 ORDER BY month`, memberID, year)
	if err != nil {
		return nil, fmt.Errorf("contributions: list: %w", err)
	}
	defer rows.Close()
	return scanContributions(rows)
}

type txStore struct {
	tx       pgx.Tx
	recorder *shared.AuditRecorder
}

func (t *txStore) Insert(ctx context.Context, c Contribution) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO contributions (member_id, month, year, amount, late_fee, posted_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		c.MemberID, int(c.Month), c.Year, c.Amount.String(), c.LateFee.String(), c.PostedAt, c.CreatedAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("contributions: insert: %w", err)
	}
	return id, nil
}

func (t *txStore) RecordAudit(ctx context.Context, entry shared.AuditEntry) error {
	return t.recorder.Record(ctx, t.tx, entry)
}

func scanContributions(rows pgx.Rows) ([]Contribution, error) {
	var out []Contribution
	for rows.Next() {
		var (
			c               Contribution
			month           int
			amount, lateFee string
		)
		if err := rows.Scan(&c.ID, &c.MemberID, &month, &c.Year, &amount, &lateFee, &c.PostedAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("contributions: scan: %w", err)
		}
		c.Month = time.Month(month)
		var err error
		if c.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		if c.LateFee, err = decimal.NewFromString(lateFee); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
