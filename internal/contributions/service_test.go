package contributions

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/members"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/money"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/settings"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/shared"
)

type memoryStore struct {
	byKey  map[string]Contribution
	audits []shared.AuditEntry
	nextID int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{byKey: make(map[string]Contribution)}
}

func key(memberID int64, month time.Month, year int) string {
	return fmt.Sprintf("%d-%d-%d", memberID, month, year)
}

type memoryTx struct {
	store  *memoryStore
	staged []Contribution
	audits []shared.AuditEntry
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	tx := &memoryTx{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, c := range tx.staged {
		s.byKey[key(c.MemberID, c.Month, c.Year)] = c
	}
	s.audits = append(s.audits, tx.audits...)
	return nil
}

func (s *memoryStore) ListForMember(ctx context.Context, memberID int64, year int) ([]Contribution, error) {
	var out []Contribution
	for _, c := range s.byKey {
		if c.MemberID == memberID && c.Year == year {
			out = append(out, c)
		}
	}
	return out, nil
}

func (t *memoryTx) Insert(ctx context.Context, c Contribution) (int64, error) {
	if _, exists := t.store.byKey[key(c.MemberID, c.Month, c.Year)]; exists {
		return 0, ErrDuplicate
	}
	t.store.nextID++
	c.ID = t.store.nextID
	t.staged = append(t.staged, c)
	return c.ID, nil
}

func (t *memoryTx) RecordAudit(ctx context.Context, entry shared.AuditEntry) error {
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

type staticSettings settings.Engine

func (s staticSettings) Resolve(context.Context) (settings.Engine, error) {
	return settings.Engine(s), nil
}

type openGuard struct{ blocked bool }

func (g openGuard) EnsureYearOpen(context.Context, int) error {
	if g.blocked {
		return shared.ErrYearLocked
	}
	return nil
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestService(store *memoryStore, engine settings.Engine, guard openGuard) *Service {
	directory := staticDirectory{
		1: {ID: 1, MemberNumber: "KVB001", Status: members.StatusActive},
		2: {ID: 2, MemberNumber: "KVB002", Status: members.StatusInactive},
	}
	svc := NewService(store, directory, staticSettings(engine), guard, slog.New(slog.NewTextHandler(discardWriter{}, nil)))
	svc.WithNow(func() time.Time { return time.Date(2025, time.June, 5, 10, 0, 0, 0, time.UTC) })
	return svc
}

func TestPostContribution(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, settings.Defaults(), openGuard{})

	c, err := svc.Post(context.Background(), PostInput{
		MemberID: 1, Month: time.June, Year: 2025, Amount: money.FromInt(100),
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), c.ID)
	require.True(t, c.LateFee.IsZero())

	require.Len(t, store.audits, 1)
	require.Equal(t, "contributions", store.audits[0].Table)
	require.Equal(t, shared.AuditInsert, store.audits[0].Op)
}

func TestPostAuditsContextActor(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, settings.Defaults(), openGuard{})

	ctx := shared.ContextWithActor(context.Background(), "treasurer@karonga")
	_, err := svc.Post(ctx, PostInput{
		MemberID: 1, Month: time.June, Year: 2025, Amount: money.FromInt(100),
	})
	require.NoError(t, err)
	require.Len(t, store.audits, 1)
	require.Equal(t, "treasurer@karonga", store.audits[0].Actor)

	_, err = svc.Post(context.Background(), PostInput{
		MemberID: 1, Month: time.July, Year: 2025, Amount: money.FromInt(100),
	})
	require.NoError(t, err)
	require.Equal(t, shared.SystemActor, store.audits[1].Actor)
}

func TestPostRejectsDuplicateMonth(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, settings.Defaults(), openGuard{})

	in := PostInput{MemberID: 1, Month: time.June, Year: 2025, Amount: money.FromInt(100)}
	_, err := svc.Post(context.Background(), in)
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), in)
	require.ErrorIs(t, err, ErrDuplicate)
	require.Len(t, store.audits, 1)
}

func TestPostAppliesLateFee(t *testing.T) {
	engine := settings.Defaults()
	engine.LateFee = money.FromInt(25)
	store := newMemoryStore()
	svc := newTestService(store, engine, openGuard{})

	// Posted on the 5th for June: on time (due day 7).
	onTime, err := svc.Post(context.Background(), PostInput{MemberID: 1, Month: time.June, Year: 2025, Amount: money.FromInt(100)})
	require.NoError(t, err)
	require.True(t, onTime.LateFee.IsZero())

	// May's contribution posted in June is late.
	late, err := svc.Post(context.Background(), PostInput{MemberID: 1, Month: time.May, Year: 2025, Amount: money.FromInt(100)})
	require.NoError(t, err)
	require.Equal(t, "25", late.LateFee.String())
}

func TestPostRejectsIneligibleMember(t *testing.T) {
	svc := newTestService(newMemoryStore(), settings.Defaults(), openGuard{})
	_, err := svc.Post(context.Background(), PostInput{MemberID: 2, Month: time.June, Year: 2025, Amount: money.FromInt(100)})
	require.ErrorIs(t, err, ErrMemberNotEligible)
}

func TestPostRejectsInvalidInput(t *testing.T) {
	svc := newTestService(newMemoryStore(), settings.Defaults(), openGuard{})
	_, err := svc.Post(context.Background(), PostInput{MemberID: 1, Month: time.June, Year: 2025, Amount: money.FromInt(0)})
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.Post(context.Background(), PostInput{MemberID: 1, Month: 13, Year: 2025, Amount: money.FromInt(100)})
	require.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestPostBlockedDuringDistribution(t *testing.T) {
	svc := newTestService(newMemoryStore(), settings.Defaults(), openGuard{blocked: true})
	_, err := svc.Post(context.Background(), PostInput{MemberID: 1, Month: time.June, Year: 2025, Amount: money.FromInt(100)})
	require.ErrorIs(t, err, shared.ErrYearLocked)
}
