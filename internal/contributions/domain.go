// Package contributions handles monthly member contributions into the
// shared fund.
package contributions

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Contribution is one member's payment for one (month, year). At most
// one exists per member and month; corrections are administrative.
type Contribution struct {
	ID        int64
	MemberID  int64
	Month     time.Month
	Year      int
	Amount    decimal.Decimal
	LateFee   decimal.Decimal
	PostedAt  time.Time
	CreatedAt time.Time
}

// PostInput captures a validated contribution posting.
type PostInput struct {
	MemberID int64
	Month    time.Month
	Year     int
	Amount   decimal.Decimal
	PostedAt time.Time
}

// Domain errors.
var (
	// ErrDuplicate rejects a second contribution for the same
	// (member, month, year).
	ErrDuplicate = errors.New("contributions: already posted for this month")
	// ErrInvalidAmount rejects non-positive amounts.
	ErrInvalidAmount = errors.New("contributions: amount must be positive")
	// ErrInvalidPeriod rejects malformed month/year values.
	ErrInvalidPeriod = errors.New("contributions: invalid month or year")
	// ErrMemberNotEligible rejects postings for non-active members.
	ErrMemberNotEligible = errors.New("contributions: member is not active")
	// ErrNotFound indicates the contribution does not exist.
	ErrNotFound = errors.New("contributions: not found")
)
