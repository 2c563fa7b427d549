// Package loans implements loan disbursement, amortization scheduling
// and repayment processing for the village bank ledger.
package loans

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus enumerates loan lifecycle states.
type LoanStatus string

const (
	StatusActive    LoanStatus = "ACTIVE"
	StatusCompleted LoanStatus = "COMPLETED"
	StatusDefaulted LoanStatus = "DEFAULTED"
)

// EntryStatus enumerates persisted schedule entry states. Overdue is
// derived at query time, never stored.
type EntryStatus string

const (
	EntryPending EntryStatus = "PENDING"
	EntryPaid    EntryStatus = "PAID"
)

// Loan model. OutstandingBalance is mutated only by repayment
// processing.
type Loan struct {
	ID                 int64
	MemberID           int64
	Principal          decimal.Decimal
	PeriodicRate       decimal.Decimal
	TermMonths         int
	PeriodicPayment    decimal.Decimal
	TotalInterest      decimal.Decimal
	OutstandingBalance decimal.Decimal
	Status             LoanStatus
	DisbursedAt        time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ScheduleEntry is one installment of a loan's amortization schedule,
// ordered by PaymentNumber starting at 1.
type ScheduleEntry struct {
	ID               int64
	LoanID           int64
	PaymentNumber    int
	DueDate          time.Time
	Principal        decimal.Decimal
	Interest         decimal.Decimal
	RemainingBalance decimal.Decimal
	PrincipalPaid    decimal.Decimal
	InterestPaid     decimal.Decimal
	Status           EntryStatus
	PaidAt           *time.Time
}

// InterestOwed returns the interest still due on this entry.
func (e ScheduleEntry) InterestOwed() decimal.Decimal {
	return e.Interest.Sub(e.InterestPaid)
}

// PrincipalOwed returns the principal still due on this entry.
func (e ScheduleEntry) PrincipalOwed() decimal.Decimal {
	return e.Principal.Sub(e.PrincipalPaid)
}

// Owed returns the total still due on this entry.
func (e ScheduleEntry) Owed() decimal.Decimal {
	return e.InterestOwed().Add(e.PrincipalOwed())
}

// Overdue reports whether the entry is unpaid past its due date.
func (e ScheduleEntry) Overdue(asOf time.Time) bool {
	return e.Status == EntryPending && e.DueDate.Before(asOf)
}

// Repayment records one applied payment. Immutable once created;
// corrections are compensating records.
type Repayment struct {
	ID        int64
	LoanID    int64
	Reference string
	Amount    decimal.Decimal
	Principal decimal.Decimal
	Interest  decimal.Decimal
	PaidAt    time.Time
	CreatedAt time.Time
}

// Schedule is the amortization calculator's output.
type Schedule struct {
	PeriodicPayment decimal.Decimal
	TotalInterest   decimal.Decimal
	Entries         []ScheduleEntry
}

// DisburseInput captures a validated loan disbursement request. Rate
// and TermMonths fall back to the configured defaults when unset.
type DisburseInput struct {
	MemberID    int64
	Principal   decimal.Decimal
	Rate        *decimal.Decimal
	TermMonths  int
	DisbursedAt time.Time
}

// Domain errors.
var (
	// ErrInvalidLoanTerms rejects principal <= 0, term <= 0 or rate < 0.
	ErrInvalidLoanTerms = errors.New("loans: invalid loan terms")
	// ErrInactiveLoan rejects payments against non-active loans.
	ErrInactiveLoan = errors.New("loans: loan is not active")
	// ErrOverpayment rejects payments beyond the remaining obligation.
	ErrOverpayment = errors.New("loans: payment exceeds remaining obligation")
	// ErrInvalidAmount rejects non-positive payment amounts.
	ErrInvalidAmount = errors.New("loans: payment amount must be positive")
	// ErrMemberNotEligible rejects disbursement to non-active members.
	ErrMemberNotEligible = errors.New("loans: member is not eligible to borrow")
	// ErrNotFound indicates the loan does not exist.
	ErrNotFound = errors.New("loans: not found")
)
