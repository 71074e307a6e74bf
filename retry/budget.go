package retry

import (
	"sync"
	"time"
)

// Budget caps retries to a ratio of calls inside a sliding-reset window so a
// degraded backend is not hit with amplified traffic.
type Budget struct {
	ratio  float64
	window time.Duration

	mu          sync.Mutex
	calls       int64
	retries     int64
	windowStart time.Time

	now func() time.Time
}

// BudgetStats window counters
type BudgetStats struct {
	Calls      int64
	Retries    int64
	MaxRetries int64
	Remaining  int64
	Ratio      float64
}

// NewBudget ratio is clamped to [0, 1]; a non-positive window means one minute
func NewBudget(ratio float64, window time.Duration) *Budget {
	ratio = max(0, min(ratio, 1.0))
	if window <= 0 {
		window = time.Minute
	}
	return &Budget{
		ratio:       ratio,
		window:      window,
		windowStart: time.Now(),
		now:         time.Now,
	}
}

// RecordCall counts a first attempt
func (b *Budget) RecordCall() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	b.calls++
}

// AllowRetry reserves one retry if the window has budget left
func (b *Budget) AllowRetry() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	if b.retries >= b.maxRetriesLocked() {
		return false
	}
	b.retries++
	return true
}

// Stats returns the current window counters
func (b *Budget) Stats() BudgetStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	maxRetries := b.maxRetriesLocked()
	return BudgetStats{
		Calls:      b.calls,
		Retries:    b.retries,
		MaxRetries: maxRetries,
		Remaining:  max(0, maxRetries-b.retries),
		Ratio:      b.ratio,
	}
}

// Reset clears the window
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls, b.retries = 0, 0
	b.windowStart = b.now()
}

func (b *Budget) maxRetriesLocked() int64 {
	return int64(float64(b.calls) * b.ratio)
}

func (b *Budget) rollLocked() {
	now := b.now()
	if now.Sub(b.windowStart) >= b.window {
		b.calls, b.retries = 0, 0
		b.windowStart = now
	}
}
