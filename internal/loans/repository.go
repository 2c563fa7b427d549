package loans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/platform/db"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/shared"
)

// Repository provides PostgreSQL backed persistence for loans.
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

const loanColumns = `id, member_id, principal::text, periodic_rate::text, term_months, periodic_payment::text,
total_interest::text, outstanding_balance::text, status, disbursed_at, created_at, updated_at`

// GetLoan returns a loan by id.
func (r *Repository) GetLoan(ctx context.Context, id int64) (Loan, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
	return scanLoan(row)
}

// Schedule returns all schedule entries for a loan in payment order.
func (r *Repository) Schedule(ctx context.Context, loanID int64) ([]ScheduleEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM loan_schedule WHERE loan_id = $1 ORDER BY payment_number`, loanID)
	if err != nil {
		return nil, fmt.Errorf("loans: schedule: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListOverdue returns pending entries past their due date.
func (r *Repository) ListOverdue(ctx context.Context, asOf time.Time) ([]ScheduleEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM loan_schedule
WHERE status = $1 AND due_date < $2 ORDER BY loan_id, payment_number`, EntryPending, asOf)
	if err != nil {
		return nil, fmt.Errorf("loans: list overdue: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListRepayments returns repayments for a loan, newest first.
func (r *Repository) ListRepayments(ctx context.Context, loanID int64) ([]Repayment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, loan_id, reference, amount::text, principal::text, interest::text, paid_at, created_at
FROM repayments WHERE loan_id = $1 ORDER BY paid_at DESC, id DESC`, loanID)
	if err != nil {
		return nil, fmt.Errorf("loans: list repayments: %w", err)
	}
	defer rows.Close()
	var out []Repayment
	for rows.Next() {
		var (
			rep                         Repayment
			amount, principal, interest string
		)
		if err := rows.Scan(&rep.ID, &rep.LoanID, &rep.Reference, &amount, &principal, &interest, &rep.PaidAt, &rep.CreatedAt); err != nil {
			return nil, fmt.Errorf("loans: scan repayment: %w", err)
		}
		if rep.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		if rep.Principal, err = decimal.NewFromString(principal); err != nil {
			return nil, err
		}
		if rep.Interest, err = decimal.NewFromString(interest); err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

type txStore struct {
	tx       pgx.Tx
	recorder *shared.AuditRecorder
}

func (t *txStore) GetLoanForUpdate(ctx context.Context, loanID int64) (Loan, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, loanID)
	return scanLoan(row)
}

func (t *txStore) PendingEntries(ctx context.Context, loanID int64) ([]ScheduleEntry, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+entryColumns+` FROM loan_schedule
WHERE loan_id = $1 AND status = $2 ORDER BY payment_number`, loanID, EntryPending)
	if err != nil {
		return nil, fmt.Errorf("loans: pending entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (t *txStore) InsertLoan(ctx context.Context, loan Loan) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO loans (member_id, principal, periodic_rate, term_months, periodic_payment,
total_interest, outstanding_balance, status, disbursed_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		loan.MemberID, loan.Principal.String(), loan.PeriodicRate.String(), loan.TermMonths,
		loan.PeriodicPayment.String(), loan.TotalInterest.String(), loan.OutstandingBalance.String(),
		loan.Status, loan.DisbursedAt, loan.CreatedAt, loan.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("loans: insert loan: %w", err)
	}
	return id, nil
}

func (t *txStore) InsertScheduleEntries(ctx context.Context, loanID int64, entries []ScheduleEntry) error {
	for _, e := range entries {
		_, err := t.tx.Exec(ctx, `INSERT INTO loan_schedule (loan_id, payment_number, due_date, principal, interest,
remaining_balance, principal_paid, interest_paid, status)
VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7)`,
			loanID, e.PaymentNumber, e.DueDate, e.Principal.String(), e.Interest.String(),
			e.RemainingBalance.String(), e.Status)
		if err != nil {
			return fmt.Errorf("loans: insert schedule entry %d: %w", e.PaymentNumber, err)
		}
	}
	return nil
}

func (t *txStore) UpdateEntryPayment(ctx context.Context, entry ScheduleEntry) error {
	_, err := t.tx.Exec(ctx, `UPDATE loan_schedule SET principal_paid = $1, interest_paid = $2, status = $3, paid_at = $4
WHERE id = $5`, entry.PrincipalPaid.String(), entry.InterestPaid.String(), entry.Status, entry.PaidAt, entry.ID)
	if err != nil {
		return fmt.Errorf("loans: update entry %d: %w", entry.ID, err)
	}
	return nil
}

func (t *txStore) UpdateLoanAfterPayment(ctx context.Context, loanID int64, balance decimal.Decimal, status LoanStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE loans SET outstanding_balance = $1, status = $2, updated_at = NOW() WHERE id = $3`,
		balance.String(), status, loanID)
	if err != nil {
		return fmt.Errorf("loans: update loan %d: %w", loanID, err)
	}
	return nil
}

func (t *txStore) InsertRepayment(ctx context.Context, rep Repayment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO repayments (loan_id, reference, amount, principal, interest, paid_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		rep.LoanID, rep.Reference, rep.Amount.String(), rep.Principal.String(), rep.Interest.String(),
		rep.PaidAt, rep.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("loans: insert repayment: %w", err)
	}
	return id, nil
}

func (t *txStore) RecordAudit(ctx context.Context, entry shared.AuditEntry) error {
	return t.recorder.Record(ctx, t.tx, entry)
}

const entryColumns = `id, loan_id, payment_number, due_date, principal::text, interest::text,
remaining_balance::text, principal_paid::text, interest_paid::text, status, paid_at`

func scanLoan(row pgx.Row) (Loan, error) {
	var (
		loan                                                 Loan
		principal, rate, payment, totalInterest, outstanding string
	)
	err := row.Scan(&loan.ID, &loan.MemberID, &principal, &rate, &loan.TermMonths, &payment,
		&totalInterest, &outstanding, &loan.Status, &loan.DisbursedAt, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Loan{}, ErrNotFound
		}
		return Loan{}, fmt.Errorf("loans: scan loan: %w", err)
	}
	if loan.Principal, err = decimal.NewFromString(principal); err != nil {
		return Loan{}, err
	}
	if loan.PeriodicRate, err = decimal.NewFromString(rate); err != nil {
		return Loan{}, err
	}
	if loan.PeriodicPayment, err = decimal.NewFromString(payment); err != nil {
		return Loan{}, err
	}
	if loan.TotalInterest, err = decimal.NewFromString(totalInterest); err != nil {
		return Loan{}, err
	}
	if loan.OutstandingBalance, err = decimal.NewFromString(outstanding); err != nil {
		return Loan{}, err
	}
	return loan, nil
}

func scanEntries(rows pgx.Rows) ([]ScheduleEntry, error) {
	var out []ScheduleEntry
	for rows.Next() {
		var (
			e                                            ScheduleEntry
			principal, interest, remaining, pPaid, iPaid string
		)
		if err := rows.Scan(&e.ID, &e.LoanID, &e.PaymentNumber, &e.DueDate, &principal, &interest,
			&remaining, &pPaid, &iPaid, &e.Status, &e.PaidAt); err != nil {
			return nil, fmt.Errorf("loans: scan entry: %w", err)
		}
		var err error
		if e.Principal, err = decimal.NewFromString(principal); err != nil {
			return nil, err
		}
		if e.Interest, err = decimal.NewFromString(interest); err != nil {
			return nil, err
		}
		if e.RemainingBalance, err = decimal.NewFromString(remaining); err != nil {
			return nil, err
		}
		if e.PrincipalPaid, err = decimal.NewFromString(pPaid); err != nil {
			return nil, err
		}
		if e.InterestPaid, err = decimal.NewFromString(iPaid); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
