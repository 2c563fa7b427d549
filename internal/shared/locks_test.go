package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLockManager(t *testing.T) *LockManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLockManager(client, time.Minute)
}

func TestAcquireLoanSingleWriter(t *testing.T) {
	m := newTestLockManager(t)
	ctx := context.Background()

	release, err := m.AcquireLoan(ctx, 42)
	require.NoError(t, err)

	_, err = m.AcquireLoan(ctx, 42)
	require.ErrorIs(t, err, ErrLoanBusy)

	// A different loan is independent.
	otherRelease, err := m.AcquireLoan(ctx, 43)
	require.NoError(t, err)
	otherRelease()

	release()
	release2, err := m.AcquireLoan(ctx, 42)
	require.NoError(t, err)
	release2()
}

func TestYearLockBlocksWriters(t *testing.T) {
	m := newTestLockManager(t)
	ctx := context.Background()

	require.NoError(t, m.EnsureYearOpen(ctx, 2025))

	release, err := m.AcquireYear(ctx, 2025)
	require.NoError(t, err)

	require.ErrorIs(t, m.EnsureYearOpen(ctx, 2025), ErrYearLocked)
	_, err = m.AcquireYear(ctx, 2025)
	require.ErrorIs(t, err, ErrYearLocked)

	release()
	require.NoError(t, m.EnsureYearOpen(ctx, 2025))
}

func TestNilLockManagerIsNoOp(t *testing.T) {
	var m *LockManager
	release, err := m.AcquireLoan(context.Background(), 1)
	require.NoError(t, err)
	release()
	require.NoError(t, m.EnsureYearOpen(context.Background(), 2025))
}
