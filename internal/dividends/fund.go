package dividends

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Ledger exposes the two read aggregates the fund is built from.
type Ledger interface {
	SumContributions(ctx context.Context, year int) (decimal.Decimal, error)
	SumInterestPaid(ctx context.Context, year int) (decimal.Decimal, error)
}

// Accountant computes the authoritative total fund for a year:
// every contribution posted for the year plus every interest portion
// collected during it. Concurrent callers for the same year share one
// computation.
type Accountant struct {
	ledger Ledger
	group  singleflight.Group
}

func NewAccountant(ledger Ledger) *Accountant {
	return &Accountant{ledger: ledger}
}

func (a *Accountant) TotalFund(ctx context.Context, year int) (decimal.Decimal, error) {
	v, err, _ := a.group.Do(strconv.Itoa(year), func() (any, error) {
		contributions, err := a.ledger.SumContributions(ctx, year)
		if err != nil {
			return nil, err
		}
		interest, err := a.ledger.SumInterestPaid(ctx, year)
		if err != nil {
			return nil, err
		}
		return contributions.Add(interest), nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}
