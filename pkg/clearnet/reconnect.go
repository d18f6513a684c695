package clearnet

import (
	"sync"
	"time"
)

// RetryBudget tracks consecutive reconnection attempts against a fixed
// maximum, with exponentially growing delays between attempts. The budget
// resets only on a fully authenticated session, so a server that accepts
// connections but never completes the handshake still exhausts it.
type RetryBudget struct {
	mu          sync.Mutex
	attempt     int
	maxAttempts int
	baseDelay   time.Duration
	exhausted   bool
}

func NewRetryBudget(maxAttempts int, baseDelay time.Duration) *RetryBudget {
	return &RetryBudget{maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// Next consumes one attempt and returns the delay to wait before it.
// It returns false when the budget is spent.
func (b *RetryBudget) Next() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.exhausted || b.attempt >= b.maxAttempts {
		return 0, false
	}
	b.attempt++
	return b.baseDelay << (b.attempt - 1), true
}

// Reset restores the full budget after a successful authentication.
func (b *RetryBudget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.exhausted {
		b.attempt = 0
	}
}

// Exhaust permanently spends the budget. Used on deliberate disconnect so
// the connection-closed event that follows does not trigger a reconnect.
func (b *RetryBudget) Exhaust() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exhausted = true
}

// Attempts reports how many attempts have been consumed.
func (b *RetryBudget) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}
