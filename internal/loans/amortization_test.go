package loans

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/money"
)

var scheduleStart = time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)

func TestAmortizeReferenceLoan(t *testing.T) {
	// 1000 at 20% per month over 12 months.
	sched, err := Amortize(money.FromInt(1000), money.MustParse("0.2"), 12, scheduleStart)
	require.NoError(t, err)

	require.Equal(t, "221", sched.PeriodicPayment.String())
	require.Equal(t, "1652", sched.TotalInterest.String())
	require.Len(t, sched.Entries, 12)

	require.Equal(t, "137.67", sched.Entries[0].Interest.StringFixed(2))
	require.Equal(t, "83.33", sched.Entries[0].Principal.StringFixed(2))
	require.Equal(t, "916.67", sched.Entries[0].RemainingBalance.StringFixed(2))

	last := sched.Entries[11]
	require.Equal(t, "83.37", last.Principal.StringFixed(2))
	require.Equal(t, "137.63", last.Interest.StringFixed(2))
	require.True(t, last.RemainingBalance.IsZero())

	// The final installment still collects the quoted payment.
	require.Equal(t, "221.00", last.Principal.Add(last.Interest).StringFixed(2))
}

func TestAmortizeScheduleInvariants(t *testing.T) {
	cases := []struct {
		name      string
		principal string
		rate      string
		term      int
	}{
		{"reference", "1000", "0.2", 12},
		{"small principal", "350", "0.1", 6},
		{"awkward principal", "1234.56", "0.175", 18},
		{"single installment", "500", "0.2", 1},
		{"long term", "100000", "0.02", 60},
		{"zero rate", "1000", "0", 12},
		{"tiny rate", "1000", "0.0001", 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			principal := money.MustParse(tc.principal)
			sched, err := Amortize(principal, money.MustParse(tc.rate), tc.term, scheduleStart)
			require.NoError(t, err)
			require.Len(t, sched.Entries, tc.term)

			sum := decimal.Zero
			for _, e := range sched.Entries {
				sum = sum.Add(e.Principal)
			}
			require.True(t, sum.Equal(principal), "principal portions sum to %s, want %s", sum, principal)
			require.True(t, sched.Entries[tc.term-1].RemainingBalance.IsZero(),
				"final remaining balance %s", sched.Entries[tc.term-1].RemainingBalance)

			for i, e := range sched.Entries {
				require.Equal(t, i+1, e.PaymentNumber)
				require.Equal(t, EntryPending, e.Status)
				if i > 0 {
					require.True(t, e.DueDate.After(sched.Entries[i-1].DueDate))
				}
			}
		})
	}
}

func TestAmortizeTinyRateFloorsPayment(t *testing.T) {
	// Whole-unit rounding of the annuity at 0.01% quotes 77, which over
	// twelve installments never repays the principal. The quote is
	// floored so payment x term covers the principal.
	principal := money.FromInt(1000)
	sched, err := Amortize(principal, money.MustParse("0.0001"), 12, scheduleStart)
	require.NoError(t, err)

	require.Equal(t, "84", sched.PeriodicPayment.String())
	require.True(t, sched.PeriodicPayment.Mul(decimal.NewFromInt(12)).GreaterThanOrEqual(principal))
	require.Equal(t, "8", sched.TotalInterest.String())

	// The final installment stays near the quote instead of ballooning.
	last := sched.Entries[11]
	require.Equal(t, "83.37", last.Principal.StringFixed(2))
	require.Equal(t, "0.63", last.Interest.StringFixed(2))
	require.True(t, last.RemainingBalance.IsZero())
}

func TestAmortizeZeroRate(t *testing.T) {
	sched, err := Amortize(money.FromInt(1200), decimal.Zero, 12, scheduleStart)
	require.NoError(t, err)
	require.Equal(t, "100", sched.PeriodicPayment.String())
	require.True(t, sched.TotalInterest.IsZero())
	for _, e := range sched.Entries {
		require.True(t, e.Interest.IsZero())
	}
}

func TestAmortizeRejectsInvalidTerms(t *testing.T) {
	cases := []struct {
		name      string
		principal string
		rate      string
		term      int
	}{
		{"zero principal", "0", "0.2", 12},
		{"negative principal", "-100", "0.2", 12},
		{"zero term", "1000", "0.2", 0},
		{"negative term", "1000", "0.2", -3},
		{"negative rate", "1000", "-0.01", 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Amortize(money.MustParse(tc.principal), money.MustParse(tc.rate), tc.term, scheduleStart)
			require.ErrorIs(t, err, ErrInvalidLoanTerms)
		})
	}
}

func TestAmortizeDueDatesMonthly(t *testing.T) {
	sched, err := Amortize(money.FromInt(1000), money.MustParse("0.2"), 3, scheduleStart)
	require.NoError(t, err)
	require.Equal(t, scheduleStart.AddDate(0, 1, 0), sched.Entries[0].DueDate)
	require.Equal(t, scheduleStart.AddDate(0, 2, 0), sched.Entries[1].DueDate)
	require.Equal(t, scheduleStart.AddDate(0, 3, 0), sched.Entries[2].DueDate)
}
