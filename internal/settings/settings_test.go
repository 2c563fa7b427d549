package settings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromRowsDefaults(t *testing.T) {
	engine, err := FromRows(nil)
	require.NoError(t, err)
	require.Equal(t, "0.2", engine.InterestRate.String())
	require.Equal(t, 12, engine.LoanTermMonths)
	require.Equal(t, "100", engine.MonthlyContribution.String())
	require.Equal(t, "MWK", engine.Currency)
	require.Equal(t, time.December, engine.YearEndMonth)
	require.Equal(t, 31, engine.YearEndDay)
}

func TestFromRowsOverlay(t *testing.T) {
	engine, err := FromRows(map[string]string{
		KeyInterestRate:        "0.15",
		KeyLoanTermMonths:      "6",
		KeyMonthlyContribution: "250",
		KeyCurrency:            "ZMW",
		KeyFinancialYearEnd:    "06-30",
		KeyLateFee:             "25",
	})
	require.NoError(t, err)
	require.Equal(t, "0.15", engine.InterestRate.String())
	require.Equal(t, 6, engine.LoanTermMonths)
	require.Equal(t, time.June, engine.YearEndMonth)
	require.Equal(t, 30, engine.YearEndDay)
	require.Equal(t, "25", engine.LateFee.String())
}

func TestFromRowsRejectsOutOfBounds(t *testing.T) {
	cases := map[string]map[string]string{
		"negative rate":        {KeyInterestRate: "-0.1"},
		"zero term":            {KeyLoanTermMonths: "0"},
		"zero contribution":    {KeyMonthlyContribution: "0"},
		"malformed year end":   {KeyFinancialYearEnd: "Dec-31"},
		"due day out of range": {KeyContributionDueDay: "31"},
		"negative late fee":    {KeyLateFee: "-5"},
		"unparseable rate":     {KeyInterestRate: "one fifth"},
	}
	for name, rows := range cases {
		_, err := FromRows(rows)
		require.Error(t, err, name)
	}
}

func TestYearEnd(t *testing.T) {
	engine := Defaults()
	end := engine.YearEnd(2025)
	require.Equal(t, 2025, end.Year())
	require.Equal(t, time.December, end.Month())
	require.Equal(t, 31, end.Day())
}

type staticRows map[string]string

func (s staticRows) LoadRows(context.Context) (map[string]string, error) { return s, nil }

func TestResolverWithoutCache(t *testing.T) {
	r := NewResolver(staticRows{KeyInterestRate: "0.05"}, nil, time.Minute)
	engine, err := r.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "0.05", engine.InterestRate.String())
}
