package contributions

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/members"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/settings"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/shared"
)

// TxStore exposes the mutations of one posting. Insert returns
// ErrDuplicate when the (member, month, year) row already exists.
type TxStore interface {
	Insert(ctx context.Context, c Contribution) (int64, error)
	RecordAudit(ctx context.Context, entry shared.AuditEntry) error
}

// Store defines data access for the contributions service.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	ListForMember(ctx context.Context, memberID int64, year int) ([]Contribution, error)
}

// MemberDirectory resolves member eligibility.
type MemberDirectory interface {
	Get(ctx context.Context, id int64) (members.Member, error)
}

// SettingsResolver yields the configuration snapshot for a unit of work.
type SettingsResolver interface {
	Resolve(ctx context.Context) (settings.Engine, error)
}

// YearGuard blocks postings while dividend distribution holds the year.
type YearGuard interface {
	EnsureYearOpen(ctx context.Context, year int) error
}

// Service posts contributions with duplicate rejection and late fees.
type Service struct {
	store    Store
	members  MemberDirectory
	settings SettingsResolver
	guard    YearGuard
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service instance.
func NewService(store Store, directory MemberDirectory, resolver SettingsResolver, guard YearGuard, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		members:  directory,
		settings: resolver,
		guard:    guard,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post records one contribution. A posting after the month's due day
// carries the configured late fee. Insert and audit share one
// transaction.
func (s *Service) Post(ctx context.Context, in PostInput) (Contribution, error) {
	if !in.Amount.IsPositive() {
		return Contribution{}, ErrInvalidAmount
	}
	if in.Month < time.January || in.Month > time.December || in.Year < 1900 {
		return Contribution{}, ErrInvalidPeriod
	}
	if err := s.guard.EnsureYearOpen(ctx, in.Year); err != nil {
		return Contribution{}, err
	}

	member, err := s.members.Get(ctx, in.MemberID)
	if err != nil {
		return Contribution{}, err
	}
	if !member.Eligible() {
		return Contribution{}, ErrMemberNotEligible
	}

	engine, err := s.settings.Resolve(ctx)
	if err != nil {
		return Contribution{}, err
	}

	postedAt := in.PostedAt
	if postedAt.IsZero() {
		postedAt = s.now()
	}
	lateFee := decimal.Zero
	if engine.LateFee.IsPositive() && isLate(in.Month, in.Year, engine.ContributionDueDay, postedAt) {
		lateFee = engine.LateFee
	}

	contribution := Contribution{
		MemberID:  in.MemberID,
		Month:     in.Month,
		Year:      in.Year,
		Amount:    in.Amount,
		LateFee:   lateFee,
		PostedAt:  postedAt,
		CreatedAt: s.now(),
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		id, err := tx.Insert(ctx, contribution)
		if err != nil {
			return err
		}
		contribution.ID = id
		return tx.RecordAudit(ctx, shared.AuditEntry{
			Table:    "contributions",
			Op:       shared.AuditInsert,
			RecordID: id,
			NewValue: map[string]any{
				"member_id": contribution.MemberID,
				"month":     int(contribution.Month),
				"year":      contribution.Year,
				"amount":    contribution.Amount.StringFixed(2),
				"late_fee":  contribution.LateFee.StringFixed(2),
			},
			Actor: shared.ActorFromContext(ctx),
		})
	})
	if err != nil {
		return Contribution{}, err
	}
	s.logger.Info("contribution posted",
		slog.Int64("member_id", contribution.MemberID),
		slog.Int("month", int(contribution.Month)),
		slog.Int("year", contribution.Year),
		slog.String("amount", contribution.Amount.StringFixed(2)))
	return contribution, nil
}

// History returns a member's contributions for a year.
func (s *Service) History(ctx context.Context, memberID int64, year int) ([]Contribution, error) {
	return s.store.ListForMember(ctx, memberID, year)
}

// isLate reports whether postedAt falls past the due day of the
// contribution month.
func isLate(month time.Month, year, dueDay int, postedAt time.Time) bool {
	due := time.Date(year, month, dueDay, 23, 59, 59, 0, time.UTC)
	return postedAt.After(due)
}
