// Package settings resolves the engine's key-value configuration rows
// into a validated, strongly typed structure. A unit of work resolves
// once and carries the snapshot; a configuration change never applies
// retroactively to an in-flight calculation.
package settings

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Setting keys persisted in the settings table.
const (
	KeyInterestRate        = "interest_rate"
	KeyLoanTermMonths      = "loan_term_months"
	KeyMonthlyContribution = "monthly_contribution"
	KeyCurrency            = "currency"
	KeyFinancialYearEnd    = "financial_year_end"
	KeyContributionDueDay  = "contribution_due_day"
	KeyLateFee             = "late_fee"
)

// Engine is the typed configuration consumed by the calculation engine.
// Currency is a display unit only, never a computation input.
type Engine struct {
	InterestRate        decimal.Decimal
	LoanTermMonths      int
	MonthlyContribution decimal.Decimal
	Currency            string
	YearEndMonth        time.Month
	YearEndDay          int
	ContributionDueDay  int
	LateFee             decimal.Decimal
}

// ErrInvalidSettings indicates configuration outside the engine's bounds.
var ErrInvalidSettings = errors.New("settings: configuration out of bounds")

// Validate enforces the engine bounds: rate >= 0, term >= 1,
// contribution > 0.
func (e Engine) Validate() error {
	if e.InterestRate.IsNegative() {
		return fmt.Errorf("%w: interest rate must not be negative", ErrInvalidSettings)
	}
	if e.LoanTermMonths < 1 {
		return fmt.Errorf("%w: loan term must be at least one month", ErrInvalidSettings)
	}
	if !e.MonthlyContribution.IsPositive() {
		return fmt.Errorf("%w: monthly contribution must be positive", ErrInvalidSettings)
	}
	if e.YearEndMonth < time.January || e.YearEndMonth > time.December {
		return fmt.Errorf("%w: financial year end month invalid", ErrInvalidSettings)
	}
	if e.YearEndDay < 1 || e.YearEndDay > 31 {
		return fmt.Errorf("%w: financial year end day invalid", ErrInvalidSettings)
	}
	if e.ContributionDueDay < 1 || e.ContributionDueDay > 28 {
		return fmt.Errorf("%w: contribution due day must fall in 1..28", ErrInvalidSettings)
	}
	if e.LateFee.IsNegative() {
		return fmt.Errorf("%w: late fee must not be negative", ErrInvalidSettings)
	}
	return nil
}

// YearEnd returns the financial year boundary for the given year.
func (e Engine) YearEnd(year int) time.Time {
	return time.Date(year, e.YearEndMonth, e.YearEndDay, 23, 59, 59, 0, time.UTC)
}

// Defaults returns the configuration used when a key is absent.
func Defaults() Engine {
	return Engine{
		InterestRate:        decimal.RequireFromString("0.2"),
		LoanTermMonths:      12,
		MonthlyContribution: decimal.NewFromInt(100),
		Currency:            "MWK",
		YearEndMonth:        time.December,
		YearEndDay:          31,
		ContributionDueDay:  7,
		LateFee:             decimal.Zero,
	}
}

// FromRows overlays persisted rows on the defaults and validates the
// result.
func FromRows(rows map[string]string) (Engine, error) {
	e := Defaults()
	for key, raw := range rows {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		var err error
		switch key {
		case KeyInterestRate:
			e.InterestRate, err = decimal.NewFromString(raw)
		case KeyLoanTermMonths:
			e.LoanTermMonths, err = strconv.Atoi(raw)
		case KeyMonthlyContribution:
			e.MonthlyContribution, err = decimal.NewFromString(raw)
		case KeyCurrency:
			e.Currency = raw
		case KeyFinancialYearEnd:
			e.YearEndMonth, e.YearEndDay, err = parseMonthDay(raw)
		case KeyContributionDueDay:
			e.ContributionDueDay, err = strconv.Atoi(raw)
		case KeyLateFee:
			e.LateFee, err = decimal.NewFromString(raw)
		}
		if err != nil {
			return Engine{}, fmt.Errorf("settings: parse %s=%q: %w", key, raw, err)
		}
	}
	if err := e.Validate(); err != nil {
		return Engine{}, err
	}
	return e, nil
}

// parseMonthDay parses the MM-DD financial year boundary.
func parseMonthDay(raw string) (time.Month, int, error) {
	parts := strings.SplitN(raw, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected MM-DD")
	}
	m, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	d, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return time.Month(m), d, nil
}
