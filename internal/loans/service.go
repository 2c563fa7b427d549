package loans

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/members"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/money"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/settings"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/shared"
)

// TxStore exposes the mutations of one unit of work. RecordAudit runs
// on the same transaction as the mutations, so a financial change can
// never commit without its audit row.
type TxStore interface {
	GetLoanForUpdate(ctx context.Context, loanID int64) (Loan, error)
	PendingEntries(ctx context.Context, loanID int64) ([]ScheduleEntry, error)
	InsertLoan(ctx context.Context, loan Loan) (int64, error)
	InsertScheduleEntries(ctx context.Context, loanID int64, entries []ScheduleEntry) error
	UpdateEntryPayment(ctx context.Context, entry ScheduleEntry) error
	UpdateLoanAfterPayment(ctx context.Context, loanID int64, balance decimal.Decimal, status LoanStatus) error
	InsertRepayment(ctx context.Context, rep Repayment) (int64, error)
	RecordAudit(ctx context.Context, entry shared.AuditEntry) error
}

// Store defines data access for the loans service.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	GetLoan(ctx context.Context, id int64) (Loan, error)
	Schedule(ctx context.Context, loanID int64) ([]ScheduleEntry, error)
	ListRepayments(ctx context.Context, loanID int64) ([]Repayment, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]ScheduleEntry, error)
}

// MemberDirectory resolves member eligibility.
type MemberDirectory interface {
	Get(ctx context.Context, id int64) (members.Member, error)
}

// SettingsResolver yields the configuration snapshot for a unit of work.
type SettingsResolver interface {
	Resolve(ctx context.Context) (settings.Engine, error)
}

// Locks serialises writers. AcquireLoan enforces single-writer per
// loan; EnsureYearOpen rejects repayments while dividend distribution
// holds the year.
type Locks interface {
	AcquireLoan(ctx context.Context, loanID int64) (func(), error)
	EnsureYearOpen(ctx context.Context, year int) error
}

// Service orchestrates loan disbursement and repayment processing.
type Service struct {
	store    Store
	members  MemberDirectory
	settings SettingsResolver
	locks    Locks
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service instance.
func NewService(store Store, directory MemberDirectory, resolver SettingsResolver, locks Locks, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		members:  directory,
		settings: resolver,
		locks:    locks,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Disburse validates the request, amortizes the schedule and persists
// loan, schedule and audit entry in one transaction.
func (s *Service) Disburse(ctx context.Context, in DisburseInput) (Loan, []ScheduleEntry, error) {
	engine, err := s.settings.Resolve(ctx)
	if err != nil {
		return Loan{}, nil, err
	}
	rate := engine.InterestRate
	if in.Rate != nil {
		rate = *in.Rate
	}
	term := in.TermMonths
	if term == 0 {
		term = engine.LoanTermMonths
	}
	disbursedAt := in.DisbursedAt
	if disbursedAt.IsZero() {
		disbursedAt = s.now()
	}

	member, err := s.members.Get(ctx, in.MemberID)
	if err != nil {
		return Loan{}, nil, err
	}
	if !member.Eligible() {
		return Loan{}, nil, ErrMemberNotEligible
	}

	sched, err := Amortize(in.Principal, rate, term, disbursedAt)
	if err != nil {
		return Loan{}, nil, err
	}

	now := s.now()
	loan := Loan{
		MemberID:           in.MemberID,
		Principal:          in.Principal,
		PeriodicRate:       rate,
		TermMonths:         term,
		PeriodicPayment:    sched.PeriodicPayment,
		TotalInterest:      sched.TotalInterest,
		OutstandingBalance: in.Principal,
		Status:             StatusActive,
		DisbursedAt:        disbursedAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	var entries []ScheduleEntry
	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		id, err := tx.InsertLoan(ctx, loan)
		if err != nil {
			return err
		}
		loan.ID = id
		if err := tx.InsertScheduleEntries(ctx, id, sched.Entries); err != nil {
			return err
		}
		entries = make([]ScheduleEntry, len(sched.Entries))
		copy(entries, sched.Entries)
		for i := range entries {
			entries[i].LoanID = id
		}
		return tx.RecordAudit(ctx, shared.AuditEntry{
			Table:    "loans",
			Op:       shared.AuditInsert,
			RecordID: id,
			NewValue: auditLoanState(loan),
			Actor:    shared.ActorFromContext(ctx),
		})
	})
	if err != nil {
		return Loan{}, nil, err
	}
	s.logger.Info("loan disbursed",
		slog.Int64("loan_id", loan.ID),
		slog.Int64("member_id", loan.MemberID),
		slog.String("principal", loan.Principal.StringFixed(2)),
		slog.String("payment", loan.PeriodicPayment.String()))
	return loan, entries, nil
}

// ApplyPayment applies an incoming payment against the loan's schedule:
// interest first, then principal, excess carried into later entries.
// The whole application, balance update and audit entry share one
// transaction; concurrent payments to the same loan are serialised.
func (s *Service) ApplyPayment(ctx context.Context, loanID int64, amount decimal.Decimal, paidAt time.Time) (Repayment, error) {
	if !amount.IsPositive() {
		return Repayment{}, ErrInvalidAmount
	}
	if paidAt.IsZero() {
		paidAt = s.now()
	}
	if err := s.locks.EnsureYearOpen(ctx, paidAt.Year()); err != nil {
		return Repayment{}, err
	}
	release, err := s.locks.AcquireLoan(ctx, loanID)
	if err != nil {
		return Repayment{}, err
	}
	defer release()

	var rep Repayment
	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		loan, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != StatusActive {
			return ErrInactiveLoan
		}
		entries, err := tx.PendingEntries(ctx, loanID)
		if err != nil {
			return err
		}

		owed := decimal.Zero
		for _, e := range entries {
			owed = owed.Add(e.Owed())
		}
		tolerance := money.MinorUnits(int64(len(entries)))
		if amount.GreaterThan(owed.Add(tolerance)) {
			return ErrOverpayment
		}

		remaining := amount
		principalApplied := decimal.Zero
		interestApplied := decimal.Zero
		lastTouched := -1
		for i := range entries {
			if !remaining.IsPositive() {
				break
			}
			e := &entries[i]
			take := decimal.Min(remaining, e.InterestOwed())
			e.InterestPaid = e.InterestPaid.Add(take)
			interestApplied = interestApplied.Add(take)
			remaining = remaining.Sub(take)

			take = decimal.Min(remaining, e.PrincipalOwed())
			e.PrincipalPaid = e.PrincipalPaid.Add(take)
			principalApplied = principalApplied.Add(take)
			remaining = remaining.Sub(take)
			lastTouched = i
		}
		if remaining.IsPositive() && lastTouched >= 0 {
			// Sub-tolerance residue folds into the last touched entry
			// rather than floating on the ledger.
			entries[lastTouched].InterestPaid = entries[lastTouched].InterestPaid.Add(remaining)
			interestApplied = interestApplied.Add(remaining)
			remaining = decimal.Zero
		}

		for i := 0; i <= lastTouched; i++ {
			e := &entries[i]
			if !e.Owed().IsPositive() {
				e.Status = EntryPaid
				at := paidAt
				e.PaidAt = &at
			}
			if err := tx.UpdateEntryPayment(ctx, *e); err != nil {
				return err
			}
		}

		oldBalance := loan.OutstandingBalance
		newBalance := oldBalance.Sub(principalApplied)
		if newBalance.IsNegative() {
			if newBalance.Abs().GreaterThan(tolerance) {
				return ErrOverpayment
			}
			newBalance = decimal.Zero
		}
		status := loan.Status
		if newBalance.IsZero() {
			status = StatusCompleted
		}
		if err := tx.UpdateLoanAfterPayment(ctx, loanID, newBalance, status); err != nil {
			return err
		}

		// The pre-transaction check races a distribution that acquires
		// the year lock afterwards. Checking again here, after the
		// writes are staged, narrows that window to the commit itself.
		if err := s.locks.EnsureYearOpen(ctx, paidAt.Year()); err != nil {
			return err
		}

		rep = Repayment{
			LoanID:    loanID,
			Reference: uuid.NewString(),
			Amount:    amount,
			Principal: principalApplied,
			Interest:  interestApplied,
			PaidAt:    paidAt,
			CreatedAt: s.now(),
		}
		id, err := tx.InsertRepayment(ctx, rep)
		if err != nil {
			return err
		}
		rep.ID = id

		return tx.RecordAudit(ctx, shared.AuditEntry{
			Table:    "loans",
			Op:       shared.AuditUpdate,
			RecordID: loanID,
			OldValue: map[string]any{"outstanding_balance": oldBalance.StringFixed(2), "status": loan.Status},
			NewValue: map[string]any{
				"outstanding_balance": newBalance.StringFixed(2),
				"status":              status,
				"repayment": map[string]any{
					"reference": rep.Reference,
					"amount":    rep.Amount.StringFixed(2),
					"principal": rep.Principal.StringFixed(2),
					"interest":  rep.Interest.StringFixed(2),
					"paid_at":   rep.PaidAt.Format(time.RFC3339),
				},
			},
			Actor: shared.ActorFromContext(ctx),
		})
	})
	if err != nil {
		return Repayment{}, err
	}
	s.logger.Info("repayment applied",
		slog.Int64("loan_id", loanID),
		slog.String("amount", rep.Amount.StringFixed(2)),
		slog.String("interest", rep.Interest.StringFixed(2)))
	return rep, nil
}

// GetLoan returns a loan by id.
func (s *Service) GetLoan(ctx context.Context, id int64) (Loan, error) {
	return s.store.GetLoan(ctx, id)
}

// GetSchedule returns the full schedule for a loan.
func (s *Service) GetSchedule(ctx context.Context, loanID int64) ([]ScheduleEntry, error) {
	if _, err := s.store.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return s.store.Schedule(ctx, loanID)
}

// Repayments returns the repayment history for a loan.
func (s *Service) Repayments(ctx context.Context, loanID int64) ([]Repayment, error) {
	if _, err := s.store.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return s.store.ListRepayments(ctx, loanID)
}

// OverdueEntries returns unpaid entries past their due date as of now.
func (s *Service) OverdueEntries(ctx context.Context) ([]ScheduleEntry, error) {
	return s.store.ListOverdue(ctx, s.now())
}

func auditLoanState(loan Loan) map[string]any {
	return map[string]any{
		"member_id":           loan.MemberID,
		"principal":           loan.Principal.StringFixed(2),
		"periodic_rate":       loan.PeriodicRate.String(),
		"term_months":         loan.TermMonths,
		"periodic_payment":    loan.PeriodicPayment.String(),
		"total_interest":      loan.TotalInterest.StringFixed(2),
		"outstanding_balance": loan.OutstandingBalance.StringFixed(2),
		"status":              loan.Status,
	}
}

// ErrScheduleCorrupt flags a schedule whose stored portions no longer
// reconcile with the loan. Surfaced by integrity scans, never auto
// corrected.
var ErrScheduleCorrupt = errors.New("loans: schedule does not reconcile with loan")

// VerifySchedule recomputes schedule invariants for one loan: principal
// portions sum to the loan principal and the final remaining balance is
// zero, both within rounding tolerance.
func (s *Service) VerifySchedule(ctx context.Context, loanID int64) error {
	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return err
	}
	entries, err := s.store.Schedule(ctx, loanID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: loan %d has no schedule", ErrScheduleCorrupt, loanID)
	}
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Principal)
	}
	tol := money.MinorUnits(int64(len(entries)))
	if !money.WithinTolerance(sum, loan.Principal, tol) {
		return fmt.Errorf("%w: principal portions sum to %s, expected %s", ErrScheduleCorrupt, sum, loan.Principal)
	}
	if !entries[len(entries)-1].RemainingBalance.IsZero() {
		return fmt.Errorf("%w: final remaining balance %s", ErrScheduleCorrupt, entries[len(entries)-1].RemainingBalance)
	}
	return nil
}
