package loans

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/money"
)

// Amortize computes the fixed periodic payment and the full schedule
// for a loan disbursed at start.
//
// The quoted payment is a whole-unit annuity: interest accrues from the
// disbursement period through the final installment, so the growth
// factor spans term+1 periods. Interest is spread evenly across the
// installments and the final entry absorbs all rounding residue, which
// guarantees the principal portions sum to the principal exactly and
// the last remaining balance is exactly zero.
func Amortize(principal, rate decimal.Decimal, term int, start time.Time) (Schedule, error) {
	if !principal.IsPositive() || term < 1 || rate.IsNegative() {
		return Schedule{}, ErrInvalidLoanTerms
	}

	termDec := decimal.NewFromInt(int64(term))
	var payment decimal.Decimal
	if rate.IsZero() {
		// The annuity formula divides by zero here.
		payment = money.RoundUnit(principal.Div(termDec))
	} else {
		one := decimal.NewFromInt(1)
		growth := one.Add(rate)
		for i := 0; i < term; i++ {
			growth = growth.Mul(one.Add(rate))
		}
		payment = money.RoundUnit(principal.Mul(rate).Mul(growth).Div(growth.Sub(one)))
		// At very small rates whole-unit rounding can quote a payment
		// that never covers the principal, ballooning the final
		// installment. The quote must repay the principal over the term.
		if payment.Mul(termDec).LessThan(principal) {
			payment = principal.Div(termDec).Ceil()
		}
	}

	totalInterest := money.Clamp(payment.Mul(termDec).Sub(principal))
	perInterest := money.Round(totalInterest.Div(termDec))
	perPrincipal := payment.Sub(perInterest)

	entries := make([]ScheduleEntry, 0, term)
	balance := principal
	interestLeft := totalInterest
	for n := 1; n <= term; n++ {
		entry := ScheduleEntry{
			PaymentNumber: n,
			DueDate:       start.AddDate(0, n, 0),
			Status:        EntryPending,
		}
		if n < term {
			entry.Interest = perInterest
			entry.Principal = perPrincipal
		} else {
			// Final entry absorbs rounding drift.
			entry.Interest = interestLeft
			entry.Principal = balance
		}
		balance = balance.Sub(entry.Principal)
		interestLeft = interestLeft.Sub(entry.Interest)
		entry.RemainingBalance = balance
		entries = append(entries, entry)
	}

	return Schedule{
		PeriodicPayment: payment,
		TotalInterest:   totalInterest,
		Entries:         entries,
	}, nil
}
