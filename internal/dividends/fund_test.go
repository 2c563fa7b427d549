package dividends

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/money"
)

type staticLedger struct {
	contributions decimal.Decimal
	interest      decimal.Decimal
}

func (l staticLedger) SumContributions(context.Context, int) (decimal.Decimal, error) {
	return l.contributions, nil
}

func (l staticLedger) SumInterestPaid(context.Context, int) (decimal.Decimal, error) {
	return l.interest, nil
}

func TestTotalFund(t *testing.T) {
	accountant := NewAccountant(staticLedger{
		contributions: money.FromInt(2400),
		interest:      decimal.RequireFromString("1652.00"),
	})
	total, err := accountant.TotalFund(context.Background(), 2025)
	require.NoError(t, err)
	require.Equal(t, "4052.00", total.StringFixed(2))
}

func TestTotalFundConcurrentCallersAgree(t *testing.T) {
	accountant := NewAccountant(staticLedger{
		contributions: money.FromInt(2400),
		interest:      decimal.RequireFromString("1652.00"),
	})

	var wg sync.WaitGroup
	results := make([]decimal.Decimal, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			total, err := accountant.TotalFund(context.Background(), 2025)
			require.NoError(t, err)
			results[i] = total
		}(i)
	}
	wg.Wait()

	for _, total := range results {
		require.Equal(t, "4052.00", total.StringFixed(2))
	}
}
