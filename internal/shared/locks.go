package shared

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrLockTimeout indicates the per-key hold could not be acquired within the
// configured wait. Callers may retry with backoff.
var ErrLockTimeout = errors.New("shared: lock acquisition timed out")

// IsRetryable reports whether the error is transient contention.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// StockLockKey builds the exclusive-hold key for a (warehouse, item) pair.
func StockLockKey(warehouseID, itemID int64) string {
	return fmt.Sprintf("stock:%d:%d", warehouseID, itemID)
}

// KeyedLock serialises state-changing operations per key. Each key maps to a
// single-slot semaphore; acquisition waits at most maxWait before failing
// with ErrLockTimeout.
type KeyedLock struct {
	mu      sync.Mutex
	sems    map[string]*semaphore.Weighted
	maxWait time.Duration
}

// NewKeyedLock constructs a KeyedLock with the given acquisition bound.
func NewKeyedLock(maxWait time.Duration) *KeyedLock {
	if maxWait <= 0 {
		maxWait = 3 * time.Second
	}
	return &KeyedLock{sems: make(map[string]*semaphore.Weighted), maxWait: maxWait}
}

func (l *KeyedLock) sem(key string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.sems[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.sems[key] = sem
	}
	return sem
}

// Acquire obtains the exclusive hold for key, returning the release func.
// The hold is not reentrant; a goroutine already holding the key must not
// acquire it again.
func (l *KeyedLock) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil {
		return nil, errors.New("shared: keyed lock not initialised")
	}
	sem := l.sem(key)
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()
	if err := sem.Acquire(waitCtx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrLockTimeout
		}
		return nil, err
	}
	return func() { sem.Release(1) }, nil
}
