package loans

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/members"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/money"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/settings"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/shared"
)

type memoryStore struct {
	loans      map[int64]*Loan
	entries    map[int64][]ScheduleEntry
	repayments []Repayment
	audits     []shared.AuditEntry
	nextLoanID int64
	nextRepID  int64
	failAudit  bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		loans:   make(map[int64]*Loan),
		entries: make(map[int64][]ScheduleEntry),
	}
}

type memoryTx struct {
	store *memoryStore
	// staged state, applied on commit
	loans      map[int64]Loan
	entries    map[int64][]ScheduleEntry
	repayments []Repayment
	audits     []shared.AuditEntry
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	tx := &memoryTx{
		store:   s,
		loans:   make(map[int64]Loan),
		entries: make(map[int64][]ScheduleEntry),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, loan := range tx.loans {
		copied := loan
		s.loans[id] = &copied
	}
	for loanID, staged := range tx.entries {
		s.entries[loanID] = staged
	}
	s.repayments = append(s.repayments, tx.repayments...)
	s.audits = append(s.audits, tx.audits...)
	return nil
}

func (s *memoryStore) GetLoan(ctx context.Context, id int64) (Loan, error) {
	loan, ok := s.loans[id]
	if !ok {
		return Loan{}, ErrNotFound
	}
	return *loan, nil
}

func (s *memoryStore) Schedule(ctx context.Context, loanID int64) ([]ScheduleEntry, error) {
	out := make([]ScheduleEntry, len(s.entries[loanID]))
	copy(out, s.entries[loanID])
	return out, nil
}

func (s *memoryStore) ListRepayments(ctx context.Context, loanID int64) ([]Repayment, error) {
	var out []Repayment
	for _, rep := range s.repayments {
		if rep.LoanID == loanID {
			out = append(out, rep)
		}
	}
	return out, nil
}

func (s *memoryStore) ListOverdue(ctx context.Context, asOf time.Time) ([]ScheduleEntry, error) {
	var out []ScheduleEntry
	for _, entries := range s.entries {
		for _, e := range entries {
			if e.Overdue(asOf) {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (t *memoryTx) GetLoanForUpdate(ctx context.Context, loanID int64) (Loan, error) {
	if staged, ok := t.loans[loanID]; ok {
		return staged, nil
	}
	return t.store.GetLoan(ctx, loanID)
}

func (t *memoryTx) PendingEntries(ctx context.Context, loanID int64) ([]ScheduleEntry, error) {
	source := t.store.entries[loanID]
	if staged, ok := t.entries[loanID]; ok {
		source = staged
	}
	var out []ScheduleEntry
	for _, e := range source {
		if e.Status == EntryPending {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memoryTx) InsertLoan(ctx context.Context, loan Loan) (int64, error) {
	t.store.nextLoanID++
	loan.ID = t.store.nextLoanID
	t.loans[loan.ID] = loan
	return loan.ID, nil
}

func (t *memoryTx) InsertScheduleEntries(ctx context.Context, loanID int64, entries []ScheduleEntry) error {
	staged := make([]ScheduleEntry, len(entries))
	copy(staged, entries)
	for i := range staged {
		staged[i].LoanID = loanID
		staged[i].ID = int64(i + 1)
	}
	t.entries[loanID] = staged
	return nil
}

func (t *memoryTx) UpdateEntryPayment(ctx context.Context, entry ScheduleEntry) error {
	staged, ok := t.entries[entry.LoanID]
	if !ok {
		staged = make([]ScheduleEntry, len(t.store.entries[entry.LoanID]))
		copy(staged, t.store.entries[entry.LoanID])
	}
	for i := range staged {
		if staged[i].ID == entry.ID {
			staged[i] = entry
		}
	}
	t.entries[entry.LoanID] = staged
	return nil
}

func (t *memoryTx) UpdateLoanAfterPayment(ctx context.Context, loanID int64, balance decimal.Decimal, status LoanStatus) error {
	loan, err := t.GetLoanForUpdate(ctx, loanID)
	if err != nil {
		return err
	}
	loan.OutstandingBalance = balance
	loan.Status = status
	t.loans[loanID] = loan
	return nil
}

func (t *memoryTx) InsertRepayment(ctx context.Context, rep Repayment) (int64, error) {
	t.store.nextRepID++
	rep.ID = t.store.nextRepID
	t.repayments = append(t.repayments, rep)
	return rep.ID, nil
}

func (t *memoryTx) RecordAudit(ctx context.Context, entry shared.AuditEntry) error {
	if t.store.failAudit {
		return shared.ErrAuditEntryInvalid
	}
	t.audits = append(t.audits, entry)
	return nil
}

type staticDirectory map[int64]members.Member

func (d staticDirectory) Get(ctx context.Context, id int64) (members.Member, error) {
	m, ok := d[id]
	if !ok {
		return members.Member{}, members.ErrNotFound
	}
	return m, nil
}

type staticSettings struct{}

func (staticSettings) Resolve(context.Context) (settings.Engine, error) {
	return settings.Defaults(), nil
}

type openLocks struct{}

func (openLocks) AcquireLoan(context.Context, int64) (func(), error) { return func() {}, nil }
func (openLocks) EnsureYearOpen(context.Context, int) error          { return nil }

func newTestService(store *memoryStore) *Service {
	directory := staticDirectory{
		1: {ID: 1, MemberNumber: "KVB001", Status: members.StatusActive},
		2: {ID: 2, MemberNumber: "KVB002", Status: members.StatusSuspended},
	}
	svc := NewService(store, directory, staticSettings{}, openLocks{}, slog.New(slog.NewTextHandler(testWriter{}, nil)))
	svc.WithNow(func() time.Time { return time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC) })
	return svc
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func disburseReference(t *testing.T, svc *Service) Loan {
	t.Helper()
	loan, entries, err := svc.Disburse(context.Background(), DisburseInput{
		MemberID:  1,
		Principal: money.FromInt(1000),
	})
	require.NoError(t, err)
	require.Len(t, entries, 12)
	return loan
}

func TestDisburseUsesConfiguredDefaults(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)

	loan := disburseReference(t, svc)
	require.Equal(t, "0.2", loan.PeriodicRate.String())
	require.Equal(t, 12, loan.TermMonths)
	require.Equal(t, "221", loan.PeriodicPayment.String())
	require.Equal(t, StatusActive, loan.Status)
	require.True(t, loan.OutstandingBalance.Equal(money.FromInt(1000)))

	require.Len(t, store.audits, 1)
	require.Equal(t, "loans", store.audits[0].Table)
	require.Equal(t, shared.AuditInsert, store.audits[0].Op)
}

func TestDisburseRejectsIneligibleMember(t *testing.T) {
	svc := newTestService(newMemoryStore())
	_, _, err := svc.Disburse(context.Background(), DisburseInput{MemberID: 2, Principal: money.FromInt(500)})
	require.ErrorIs(t, err, ErrMemberNotEligible)
}

func TestApplyPaymentSplitsInterestFirst(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	loan := disburseReference(t, svc)

	rep, err := svc.ApplyPayment(context.Background(), loan.ID, money.FromInt(221), time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "137.67", rep.Interest.StringFixed(2))
	require.Equal(t, "83.33", rep.Principal.StringFixed(2))
	require.NotEmpty(t, rep.Reference)

	updated, err := svc.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Equal(t, "916.67", updated.OutstandingBalance.StringFixed(2))
	require.Equal(t, StatusActive, updated.Status)

	entries, err := svc.GetSchedule(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Equal(t, EntryPaid, entries[0].Status)
	require.Equal(t, EntryPending, entries[1].Status)
}

func TestApplyPaymentCarriesExcessForward(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	loan := disburseReference(t, svc)

	// One and a half installments: the excess lands on entry two.
	rep, err := svc.ApplyPayment(context.Background(), loan.ID, money.MustParse("331.50"), time.Time{})
	require.NoError(t, err)
	require.True(t, rep.Amount.Equal(money.MustParse("331.50")))

	entries, err := svc.GetSchedule(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Equal(t, EntryPaid, entries[0].Status)
	require.Equal(t, EntryPending, entries[1].Status)
	require.Equal(t, "110.50", entries[1].InterestPaid.Add(entries[1].PrincipalPaid).StringFixed(2))
}

func TestApplyPaymentCompletesLoan(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	loan := disburseReference(t, svc)

	for i := 0; i < 12; i++ {
		_, err := svc.ApplyPayment(context.Background(), loan.ID, money.FromInt(221), time.Time{})
		require.NoError(t, err, "installment %d", i+1)
	}

	updated, err := svc.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	require.True(t, updated.OutstandingBalance.IsZero())
	require.Equal(t, StatusCompleted, updated.Status)

	// A 13th payment hits a completed loan.
	_, err = svc.ApplyPayment(context.Background(), loan.ID, money.FromInt(221), time.Time{})
	require.ErrorIs(t, err, ErrInactiveLoan)

	// Interest collected across the loan equals the quoted total.
	total := decimal.Zero
	for _, rep := range store.repayments {
		total = total.Add(rep.Interest)
	}
	require.Equal(t, "1652.00", total.StringFixed(2))
}

func TestApplyPaymentRejectsOverpayment(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	loan := disburseReference(t, svc)

	// Total obligation is 2652; anything beyond tolerance must bounce.
	_, err := svc.ApplyPayment(context.Background(), loan.ID, money.FromInt(2700), time.Time{})
	require.ErrorIs(t, err, ErrOverpayment)

	// Loan state unchanged.
	updated, err := svc.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	require.True(t, updated.OutstandingBalance.Equal(money.FromInt(1000)))
	require.Empty(t, store.repayments)
}

func TestApplyPaymentSettlesWholeLoanAtOnce(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	loan := disburseReference(t, svc)

	rep, err := svc.ApplyPayment(context.Background(), loan.ID, money.FromInt(2652), time.Time{})
	require.NoError(t, err)
	require.Equal(t, "1000.00", rep.Principal.StringFixed(2))
	require.Equal(t, "1652.00", rep.Interest.StringFixed(2))

	updated, err := svc.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, updated.Status)
}

func TestApplyPaymentRejectsNonPositiveAmount(t *testing.T) {
	svc := newTestService(newMemoryStore())
	_, err := svc.ApplyPayment(context.Background(), 1, decimal.Zero, time.Time{})
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.ApplyPayment(context.Background(), 1, money.MustParse("-50"), time.Time{})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

// closingLocks lets the year through until blockFrom calls have been
// made, mimicking a distribution that grabs the year mid-flight.
type closingLocks struct {
	openCalls int
	blockFrom int
}

func (l *closingLocks) AcquireLoan(context.Context, int64) (func(), error) { return func() {}, nil }

func (l *closingLocks) EnsureYearOpen(context.Context, int) error {
	l.openCalls++
	if l.blockFrom > 0 && l.openCalls >= l.blockFrom {
		return shared.ErrYearLocked
	}
	return nil
}

func TestApplyPaymentRechecksYearInsideTx(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	loan := disburseReference(t, svc)
	auditsBefore := len(store.audits)

	// The year closes between the pre-transaction check and the commit.
	locks := &closingLocks{blockFrom: 2}
	svc.locks = locks

	_, err := svc.ApplyPayment(context.Background(), loan.ID, money.FromInt(221), time.Time{})
	require.ErrorIs(t, err, shared.ErrYearLocked)
	require.Equal(t, 2, locks.openCalls)

	// The staged writes rolled back with the transaction.
	updated, err := svc.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	require.True(t, updated.OutstandingBalance.Equal(money.FromInt(1000)))
	require.Empty(t, store.repayments)
	require.Len(t, store.audits, auditsBefore)
}

func TestApplyPaymentAuditFailureRollsBack(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	loan := disburseReference(t, svc)

	store.failAudit = true
	_, err := svc.ApplyPayment(context.Background(), loan.ID, money.FromInt(221), time.Time{})
	require.Error(t, err)

	// Nothing committed: balance, schedule and repayments untouched.
	updated, err := svc.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	require.True(t, updated.OutstandingBalance.Equal(money.FromInt(1000)))
	require.Empty(t, store.repayments)
	entries, err := svc.GetSchedule(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Equal(t, EntryPending, entries[0].Status)
}

func TestEveryRepaymentIsAudited(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	loan := disburseReference(t, svc)

	for i := 0; i < 3; i++ {
		_, err := svc.ApplyPayment(context.Background(), loan.ID, money.FromInt(221), time.Time{})
		require.NoError(t, err)
	}
	// One disbursement audit plus one per repayment.
	require.Len(t, store.audits, 4)
	for _, a := range store.audits[1:] {
		require.Equal(t, shared.AuditUpdate, a.Op)
		require.NotNil(t, a.NewValue)
		require.NotNil(t, a.OldValue)
	}
}

func TestOverdueIsDerived(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	loan := disburseReference(t, svc)

	entries, err := svc.GetSchedule(context.Background(), loan.ID)
	require.NoError(t, err)
	// First due date is one month after disbursement (2025-04-01).
	require.False(t, entries[0].Overdue(time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC)))
	require.True(t, entries[0].Overdue(time.Date(2025, time.April, 2, 0, 0, 0, 0, time.UTC)))
}

func TestVerifySchedule(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	loan := disburseReference(t, svc)
	require.NoError(t, svc.VerifySchedule(context.Background(), loan.ID))

	// Corrupt one portion and the scan must flag it.
	store.entries[loan.ID][3].Principal = store.entries[loan.ID][3].Principal.Add(money.FromInt(10))
	require.ErrorIs(t, svc.VerifySchedule(context.Background(), loan.ID), ErrScheduleCorrupt)
}
