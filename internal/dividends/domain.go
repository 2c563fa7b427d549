package dividends

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status tracks a dividend record's lifecycle. A recomputation for the
// same year cancels the prior records instead of editing them.
type Status string

const (
	StatusCalculated Status = "CALCULATED"
	StatusPaid       Status = "PAID"
	StatusCancelled  Status = "CANCELLED"
)

var (
	ErrNotFound         = errors.New("dividends: record not found")
	ErrNoActiveMembers  = errors.New("dividends: no active members for year")
	ErrFundConservation = errors.New("dividends: distributed total diverges from fund total")
	ErrYearAlreadyPaid  = errors.New("dividends: year already paid out, recompute must be explicit")
)

// DividendRecord is one member's payout for one financial year.
// Warning marks a borrower whose outstanding balance exceeded their
// contributions plus interest, so the amount was clamped to zero.
type DividendRecord struct {
	ID                 int64
	MemberID           int64
	Year               int
	TotalContributions decimal.Decimal
	TotalInterestPaid  decimal.Decimal
	OutstandingBalance decimal.Decimal
	Amount             decimal.Decimal
	Warning            bool
	Status             Status
	CalculatedAt       time.Time
	CreatedAt          time.Time
}

// Figures is the per-member snapshot distribution computes from.
// Borrower is true when the member had loan activity in the year:
// a disbursement, a repayment, or a balance still outstanding.
type Figures struct {
	Contributions decimal.Decimal
	InterestPaid  decimal.Decimal
	Outstanding   decimal.Decimal
	Borrower      bool
}
