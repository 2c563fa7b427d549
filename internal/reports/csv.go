// Package reports renders read-side CSV exports over the ledger.
package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/dividends"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/loans"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/settings"
)

// LoanSource supplies the loan-side rows.
type LoanSource interface {
	GetSchedule(ctx context.Context, loanID int64) ([]loans.ScheduleEntry, error)
	Repayments(ctx context.Context, loanID int64) ([]loans.Repayment, error)
}

// DividendSource supplies the dividend rows.
type DividendSource interface {
	ListForYear(ctx context.Context, year int) ([]dividends.DividendRecord, error)
}

// SettingsResolver supplies the display currency.
type SettingsResolver interface {
	Resolve(ctx context.Context) (settings.Engine, error)
}

// Exporter writes CSV reports. Amounts carry both a machine column and
// a locale-formatted display column.
type Exporter struct {
	loans     LoanSource
	dividends DividendSource
	settings  SettingsResolver
	printer   *message.Printer
}

// NewExporter builds an Exporter.
func NewExporter(loanSource LoanSource, dividendSource DividendSource, resolver SettingsResolver) *Exporter {
	return &Exporter{
		loans:     loanSource,
		dividends: dividendSource,
		settings:  resolver,
		printer:   message.NewPrinter(language.English),
	}
}

// ScheduleCSV exports a loan's amortization schedule.
func (e *Exporter) ScheduleCSV(ctx context.Context, loanID int64) ([]byte, error) {
	entries, err := e.loans.GetSchedule(ctx, loanID)
	if err != nil {
		return nil, err
	}
	currency, err := e.currency(ctx)
	if err != nil {
		return nil, err
	}
	return writeCSV(
		[]string{"payment_number", "due_date", "principal", "interest", "remaining_balance", "status", "amount_display"},
		len(entries),
		func(i int) []string {
			entry := entries[i]
			return []string{
				strconv.Itoa(entry.PaymentNumber),
				entry.DueDate.Format("2006-01-02"),
				entry.Principal.StringFixed(2),
				entry.Interest.StringFixed(2),
				entry.RemainingBalance.StringFixed(2),
				string(entry.Status),
				e.display(currency, entry.Principal.Add(entry.Interest)),
			}
		})
}

// RepaymentsCSV exports a loan's repayment history.
func (e *Exporter) RepaymentsCSV(ctx context.Context, loanID int64) ([]byte, error) {
	repayments, err := e.loans.Repayments(ctx, loanID)
	if err != nil {
		return nil, err
	}
	currency, err := e.currency(ctx)
	if err != nil {
		return nil, err
	}
	return writeCSV(
		[]string{"reference", "paid_at", "amount", "principal", "interest", "amount_display"},
		len(repayments),
		func(i int) []string {
			rep := repayments[i]
			return []string{
				rep.Reference,
				rep.PaidAt.Format("2006-01-02"),
				rep.Amount.StringFixed(2),
				rep.Principal.StringFixed(2),
				rep.Interest.StringFixed(2),
				e.display(currency, rep.Amount),
			}
		})
}

// DividendsCSV exports a year's dividend records.
func (e *Exporter) DividendsCSV(ctx context.Context, year int) ([]byte, error) {
	records, err := e.dividends.ListForYear(ctx, year)
	if err != nil {
		return nil, err
	}
	currency, err := e.currency(ctx)
	if err != nil {
		return nil, err
	}
	return writeCSV(
		[]string{"member_id", "year", "contributions", "interest_paid", "outstanding_balance", "amount", "warning", "status", "amount_display"},
		len(records),
		func(i int) []string {
			rec := records[i]
			return []string{
				strconv.FormatInt(rec.MemberID, 10),
				strconv.Itoa(rec.Year),
				rec.TotalContributions.StringFixed(2),
				rec.TotalInterestPaid.StringFixed(2),
				rec.OutstandingBalance.StringFixed(2),
				rec.Amount.StringFixed(2),
				strconv.FormatBool(rec.Warning),
				string(rec.Status),
				e.display(currency, rec.Amount),
			}
		})
}

func (e *Exporter) currency(ctx context.Context) (string, error) {
	engine, err := e.settings.Resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("reports: resolve settings: %w", err)
	}
	return engine.Currency, nil
}

func (e *Exporter) display(currency string, amount decimal.Decimal) string {
	f, _ := amount.Float64()
	return e.printer.Sprintf("%s %v", currency, number.Decimal(f, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

func writeCSV(header []string, n int, row func(int) []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("reports: write header: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			return nil, fmt.Errorf("reports: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("reports: flush: %w", err)
	}
	return buf.Bytes(), nil
}
