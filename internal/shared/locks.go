package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock keys for ledger critical sections.
func loanLockKey(loanID int64) string {
	return fmt.Sprintf("ledger:loan:%d:lock", loanID)
}

func yearLockKey(year int) string {
	return fmt.Sprintf("ledger:year:%d:distribution", year)
}

var (
	// ErrLoanBusy indicates another repayment is being applied to the loan.
	ErrLoanBusy = errors.New("shared: loan locked by another operation")
	// ErrYearLocked indicates dividend distribution holds the year.
	ErrYearLocked = errors.New("shared: year locked for dividend distribution")
)

// LockManager serialises writers through redis. Repayments to the same
// loan are single-writer; dividend distribution takes a year exclusively
// and contribution/repayment writers for that year are rejected until
// it releases.
type LockManager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLockManager constructs a LockManager. ttl bounds how long a crashed
// holder can wedge a key.
func NewLockManager(client *redis.Client, ttl time.Duration) *LockManager {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LockManager{client: client, ttl: ttl}
}

// AcquireLoan takes the single-writer lock for a loan.
func (m *LockManager) AcquireLoan(ctx context.Context, loanID int64) (func(), error) {
	return m.acquire(ctx, loanLockKey(loanID), ErrLoanBusy)
}

// AcquireYear takes the exclusive distribution lock for a year.
func (m *LockManager) AcquireYear(ctx context.Context, year int) (func(), error) {
	return m.acquire(ctx, yearLockKey(year), ErrYearLocked)
}

// EnsureYearOpen rejects writers while a distribution run holds the year.
func (m *LockManager) EnsureYearOpen(ctx context.Context, year int) error {
	if m == nil || m.client == nil {
		return nil
	}
	n, err := m.client.Exists(ctx, yearLockKey(year)).Result()
	if err != nil {
		return fmt.Errorf("shared: year lock check: %w", err)
	}
	if n > 0 {
		return ErrYearLocked
	}
	return nil
}

func (m *LockManager) acquire(ctx context.Context, key string, busy error) (func(), error) {
	if m == nil || m.client == nil {
		return func() {}, nil
	}
	ok, err := m.client.SetNX(ctx, key, "1", m.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, busy
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.client.Del(releaseCtx, key).Err()
	}
	return release, nil
}
