package utxo

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"LiquidLend/internal/observability"
)

// ErrContended is returned when a lock could not be acquired after the
// single backoff retry.
var ErrContended = errors.New("utxo: lock contended")

const (
	// DefaultLockTTL bounds how long a crashed operation can hold a
	// reserve UTXO hostage.
	DefaultLockTTL = 30 * time.Second

	// DefaultRetryWait is the backoff before the one retry.
	DefaultRetryWait = 500 * time.Millisecond
)

// LockTable is an in-process advisory lock over reserve UTXOs. Every
// state-mutating pool operation holds the lock for its reserve's UTXO so
// that concurrent spenders of the same covenant output serialize.
// Expired entries are swept on each acquire.
type LockTable struct {
	mu        sync.Mutex
	locks     map[string]time.Time
	ttl       time.Duration
	retryWait time.Duration
	now       func() time.Time
	sleep     func(time.Duration)
	log       zerolog.Logger
	metrics   *observability.Metrics
}

func NewLockTable(metrics *observability.Metrics) *LockTable {
	return &LockTable{
		locks:     make(map[string]time.Time),
		ttl:       DefaultLockTTL,
		retryWait: DefaultRetryWait,
		now:       time.Now,
		sleep:     time.Sleep,
		log:       observability.NewLogger("utxo_lock"),
		metrics:   metrics,
	}
}

// NewLockTableWithClock builds a table with explicit timing knobs.
func NewLockTableWithClock(ttl, retryWait time.Duration, now func() time.Time, sleep func(time.Duration), metrics *observability.Metrics) *LockTable {
	t := NewLockTable(metrics)
	t.ttl = ttl
	t.retryWait = retryWait
	t.now = now
	t.sleep = sleep
	return t
}

// TryAcquire attempts to take the lock without waiting.
func (t *LockTable) TryAcquire(utxoID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.sweepLocked(now)

	if _, held := t.locks[utxoID]; held {
		return false
	}

	t.locks[utxoID] = now
	if t.metrics != nil {
		t.metrics.LockAcquired.Inc()
	}
	return true
}

// Acquire takes the lock, retrying once after a short backoff. Returns
// ErrContended if the holder did not release in time.
func (t *LockTable) Acquire(utxoID string) error {
	if t.TryAcquire(utxoID) {
		return nil
	}

	t.log.Warn().Str("utxo_id", utxoID).Msg("utxo locked, retrying")
	if t.metrics != nil {
		t.metrics.LockRetries.Inc()
	}
	t.sleep(t.retryWait)

	if t.TryAcquire(utxoID) {
		return nil
	}

	t.log.Error().Str("utxo_id", utxoID).Msg("failed to acquire utxo lock")
	if t.metrics != nil {
		t.metrics.LockContention.Inc()
	}
	return ErrContended
}

// Release drops the lock. Releasing an unheld lock is a no-op.
func (t *LockTable) Release(utxoID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.locks, utxoID)
}

func (t *LockTable) sweepLocked(now time.Time) {
	for id, acquiredAt := range t.locks {
		if now.Sub(acquiredAt) > t.ttl {
			delete(t.locks, id)
			if t.metrics != nil {
				t.metrics.LockExpired.Inc()
			}
			t.log.Warn().Str("utxo_id", id).Msg("swept expired utxo lock")
		}
	}
}
