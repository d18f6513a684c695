package clearnet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryBudgetDelaysGrow(t *testing.T) {
	b := NewRetryBudget(3, time.Second)

	d1, ok := b.Next()
	assert.True(t, ok)
	assert.Equal(t, time.Second, d1)

	d2, ok := b.Next()
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d2)

	d3, ok := b.Next()
	assert.True(t, ok)
	assert.Equal(t, 4*time.Second, d3)

	_, ok = b.Next()
	assert.False(t, ok)
}

func TestRetryBudgetReset(t *testing.T) {
	b := NewRetryBudget(2, time.Second)

	_, _ = b.Next()
	_, _ = b.Next()
	_, ok := b.Next()
	assert.False(t, ok)

	b.Reset()
	d, ok := b.Next()
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)
}

func TestRetryBudgetExhaust(t *testing.T) {
	b := NewRetryBudget(5, time.Second)
	b.Exhaust()

	_, ok := b.Next()
	assert.False(t, ok)

	// reset after a deliberate disconnect must not revive the budget
	b.Reset()
	_, ok = b.Next()
	assert.False(t, ok)
}
