package dividends

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/members"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/money"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/shared"
)

// TxStore exposes the mutations and snapshot reads of one
// distribution run. Everything happens on a single transaction so a
// failed conservation check leaves nothing behind.
type TxStore interface {
	MemberFigures(ctx context.Context, memberID int64, year int) (Figures, error)
	PaidExists(ctx context.Context, year int) (bool, error)
	CancelActive(ctx context.Context, year int) ([]DividendRecord, error)
	Insert(ctx context.Context, record DividendRecord) (int64, error)
	RecordAudit(ctx context.Context, entry shared.AuditEntry) error
}

// Store defines data access for the dividend service.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	ListForYear(ctx context.Context, year int) ([]DividendRecord, error)
	ListForMember(ctx context.Context, memberID int64) ([]DividendRecord, error)
}

// MemberDirectory lists members the distribution covers.
type MemberDirectory interface {
	ListActive(ctx context.Context, year int) ([]members.Member, error)
}

// Fund supplies the total the distributed amounts must reconcile to.
type Fund interface {
	TotalFund(ctx context.Context, year int) (decimal.Decimal, error)
}

// Locks serializes distribution against writers for the same year.
type Locks interface {
	AcquireYear(ctx context.Context, year int) (func(), error)
}

// Service computes and persists year-end dividends.
type Service struct {
	store   Store
	members MemberDirectory
	fund    Fund
	locks   Locks
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(store Store, directory MemberDirectory, fund Fund, locks Locks, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		members: directory,
		fund:    fund,
		locks:   locks,
		logger:  logger,
		now:     time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Distribute computes every active member's dividend for the year and
// persists the records in one transaction. A non-borrower receives
// their year's contributions back; a borrower receives contributions
// plus the interest they paid, less any balance still outstanding,
// clamped at zero. The aggregate must match the fund total within one
// minor unit per member or the whole run aborts with
// ErrFundConservation. Re-running cancels the previous records first,
// so the end state is the same no matter how many times it runs. A
// year whose records were already paid out is rejected with
// ErrYearAlreadyPaid unless recompute is set.
func (s *Service) Distribute(ctx context.Context, year int, recompute bool) ([]DividendRecord, error) {
	release, err := s.locks.AcquireYear(ctx, year)
	if err != nil {
		return nil, err
	}
	defer release()

	roster, err := s.members.ListActive(ctx, year)
	if err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		return nil, ErrNoActiveMembers
	}

	total, err := s.fund.TotalFund(ctx, year)
	if err != nil {
		return nil, err
	}

	calculatedAt := s.now()
	var records []DividendRecord
	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		if !recompute {
			paid, err := tx.PaidExists(ctx, year)
			if err != nil {
				return err
			}
			if paid {
				return fmt.Errorf("%w: year %d", ErrYearAlreadyPaid, year)
			}
		}

		distributed := decimal.Zero
		records = records[:0]
		for _, member := range roster {
			figures, err := tx.MemberFigures(ctx, member.ID, year)
			if err != nil {
				return fmt.Errorf("dividends: figures for member %d: %w", member.ID, err)
			}
			record := buildRecord(member.ID, year, figures, calculatedAt)
			distributed = distributed.Add(record.Amount)
			records = append(records, record)
		}

		tolerance := money.MinorUnits(int64(len(roster)))
		if distributed.Sub(total).Abs().GreaterThan(tolerance) {
			return fmt.Errorf("%w: fund %s, distributed %s",
				ErrFundConservation, total.StringFixed(2), distributed.StringFixed(2))
		}

		superseded, err := tx.CancelActive(ctx, year)
		if err != nil {
			return err
		}
		actor := shared.ActorFromContext(ctx)
		for _, old := range superseded {
			err := tx.RecordAudit(ctx, shared.AuditEntry{
				Table:    "dividend_calculations",
				Op:       shared.AuditUpdate,
				RecordID: old.ID,
				OldValue: map[string]any{"status": string(old.Status), "amount": old.Amount.StringFixed(2)},
				NewValue: map[string]any{"status": string(StatusCancelled)},
				Actor:    actor,
			})
			if err != nil {
				return err
			}
		}
		for i := range records {
			id, err := tx.Insert(ctx, records[i])
			if err != nil {
				return err
			}
			records[i].ID = id
			err = tx.RecordAudit(ctx, shared.AuditEntry{
				Table:    "dividend_calculations",
				Op:       shared.AuditInsert,
				RecordID: id,
				NewValue: map[string]any{
					"member_id": records[i].MemberID,
					"year":      records[i].Year,
					"amount":    records[i].Amount.StringFixed(2),
					"warning":   records[i].Warning,
				},
				Actor: actor,
			})
			if err != nil {
				return err
			}
		}
		return tx.RecordAudit(ctx, shared.AuditEntry{
			Table:    "dividend_calculations",
			Op:       shared.AuditUpdate,
			RecordID: int64(year),
			OldValue: map[string]any{"superseded": len(superseded)},
			NewValue: map[string]any{
				"total_fund":  total.StringFixed(2),
				"distributed": distributed.StringFixed(2),
				"records":     len(records),
			},
			Actor: actor,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("dividends distributed",
		slog.Int("year", year),
		slog.Int("records", len(records)),
		slog.String("total_fund", total.StringFixed(2)))
	return records, nil
}

// ListForYear returns the records for a year, cancelled ones included.
func (s *Service) ListForYear(ctx context.Context, year int) ([]DividendRecord, error) {
	return s.store.ListForYear(ctx, year)
}

// ListForMember returns a member's records across years.
func (s *Service) ListForMember(ctx context.Context, memberID int64) ([]DividendRecord, error) {
	return s.store.ListForMember(ctx, memberID)
}

func buildRecord(memberID int64, year int, figures Figures, calculatedAt time.Time) DividendRecord {
	record := DividendRecord{
		MemberID:           memberID,
		Year:               year,
		TotalContributions: figures.Contributions,
		TotalInterestPaid:  figures.InterestPaid,
		OutstandingBalance: figures.Outstanding,
		Status:             StatusCalculated,
		CalculatedAt:       calculatedAt,
	}
	if !figures.Borrower {
		record.Amount = figures.Contributions
		return record
	}
	amount := figures.Contributions.Add(figures.InterestPaid).Sub(figures.Outstanding)
	if amount.IsNegative() {
		amount = decimal.Zero
		record.Warning = true
	}
	record.Amount = amount
	return record
}
