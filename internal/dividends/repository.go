package dividends

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/platform/db"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/shared"
)

// Repository provides PostgreSQL backed persistence for dividend
// records and the fund aggregates.
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

const recordColumns = `id, member_id, year, total_contributions::text, total_interest_paid::text,
outstanding_balance::text, amount::text, warning, status, calculated_at, created_at`

// ListForYear returns every record for the year, newest first.
func (r *Repository) ListForYear(ctx context.Context, year int) ([]DividendRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM dividend_calculations
WHERE year = $1 ORDER BY created_at DESC, id DESC`, year)
	if err != nil {
		return nil, fmt.Errorf("dividends: list for year: %w", err)
	}
	return scanRecords(rows)
}

// ListForMember returns a member's records across years, newest first.
func (r *Repository) ListForMember(ctx context.Context, memberID int64) ([]DividendRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM dividend_calculations
WHERE member_id = $1 ORDER BY year DESC, created_at DESC`, memberID)
	if err != nil {
		return nil, fmt.Errorf("dividends: list for member: %w", err)
	}
	return scanRecords(rows)
}

// SumContributions totals the amounts posted for the year.
func (r *Repository) SumContributions(ctx context.Context, year int) (decimal.Decimal, error) {
	var sum string
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM contributions WHERE year = $1`, year).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("dividends: sum contributions: %w", err)
	}
	return decimal.NewFromString(sum)
}

// SumInterestPaid totals the interest portions collected during the year.
func (r *Repository) SumInterestPaid(ctx context.Context, year int) (decimal.Decimal, error) {
	var sum string
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(interest), 0)::text FROM repayments
WHERE paid_at >= make_date($1, 1, 1) AND paid_at < make_date($1 + 1, 1, 1)`, year).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("dividends: sum interest: %w", err)
	}
	return decimal.NewFromString(sum)
}

type txStore struct {
	tx       pgx.Tx
	recorder *shared.AuditRecorder
}

func (t *txStore) MemberFigures(ctx context.Context, memberID int64, year int) (Figures, error) {
	var figures Figures
	var contributions, interest, outstanding string
	err := t.tx.QueryRow(ctx, `SELECT
  COALESCE((SELECT SUM(amount) FROM contributions WHERE member_id = $1 AND year = $2), 0)::text,
  COALESCE((SELECT SUM(r.interest) FROM repayments r JOIN loans l ON l.id = r.loan_id
    WHERE l.member_id = $1
      AND r.paid_at >= make_date($2, 1, 1) AND r.paid_at < make_date($2 + 1, 1, 1)), 0)::text,
  COALESCE((SELECT SUM(outstanding_balance) FROM loans
    WHERE member_id = $1 AND status <> 'COMPLETED'), 0)::text,
  EXISTS (SELECT 1 FROM loans l
    WHERE l.member_id = $1
      AND (l.disbursed_at >= make_date($2, 1, 1) AND l.disbursed_at < make_date($2 + 1, 1, 1)
        OR l.outstanding_balance > 0
        OR EXISTS (SELECT 1 FROM repayments r WHERE r.loan_id = l.id
             AND r.paid_at >= make_date($2, 1, 1) AND r.paid_at < make_date($2 + 1, 1, 1))))`,
		memberID, year).Scan(&contributions, &interest, &outstanding, &figures.Borrower)
	if err != nil {
		return Figures{}, fmt.Errorf("dividends: member figures: %w", err)
	}
	if figures.Contributions, err = decimal.NewFromString(contributions); err != nil {
		return Figures{}, err
	}
	if figures.InterestPaid, err = decimal.NewFromString(interest); err != nil {
		return Figures{}, err
	}
	if figures.Outstanding, err = decimal.NewFromString(outstanding); err != nil {
		return Figures{}, err
	}
	return figures, nil
}

// PaidExists reports whether the year already has a paid-out record.
func (t *txStore) PaidExists(ctx context.Context, year int) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM dividend_calculations WHERE year = $1 AND status = $2)`,
		year, StatusPaid).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("dividends: paid exists: %w", err)
	}
	return exists, nil
}

// CancelActive flips every non-cancelled record for the year to
// CANCELLED and returns the rows as they stood before, so the audit
// trail records the status each one was superseded from.
func (t *txStore) CancelActive(ctx context.Context, year int) ([]DividendRecord, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+recordColumns+` FROM dividend_calculations
WHERE year = $1 AND status <> $2 FOR UPDATE`, year, StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("dividends: lock active: %w", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	_, err = t.tx.Exec(ctx, `UPDATE dividend_calculations SET status = $1
WHERE year = $2 AND status <> $1`, StatusCancelled, year)
	if err != nil {
		return nil, fmt.Errorf("dividends: cancel active: %w", err)
	}
	return records, nil
}

func (t *txStore) Insert(ctx context.Context, record DividendRecord) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO dividend_calculations
(member_id, year, total_contributions, total_interest_paid, outstanding_balance, amount, warning, status, calculated_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
RETURNING id`,
		record.MemberID, record.Year,
		record.TotalContributions.String(), record.TotalInterestPaid.String(),
		record.OutstandingBalance.String(), record.Amount.String(),
		record.Warning, record.Status, record.CalculatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("dividends: insert record: %w", err)
	}
	return id, nil
}

func (t *txStore) RecordAudit(ctx context.Context, entry shared.AuditEntry) error {
	return t.recorder.Record(ctx, t.tx, entry)
}

func scanRecords(rows pgx.Rows) ([]DividendRecord, error) {
	defer rows.Close()
	var out []DividendRecord
	for rows.Next() {
		var record DividendRecord
		var contributions, interest, outstanding, amount string
		err := rows.Scan(&record.ID, &record.MemberID, &record.Year, &contributions, &interest,
			&outstanding, &amount, &record.Warning, &record.Status, &record.CalculatedAt, &record.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("dividends: scan record: %w", err)
		}
		if record.TotalContributions, err = decimal.NewFromString(contributions); err != nil {
			return nil, err
		}
		if record.TotalInterestPaid, err = decimal.NewFromString(interest); err != nil {
			return nil, err
		}
		if record.OutstandingBalance, err = decimal.NewFromString(outstanding); err != nil {
			return nil, err
		}
		if record.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}
