package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRateLimitCompliance matches spec scenario S6: with 2 rps / burst 3,
// after the burst is exhausted inter-acquire spacing must be >= 500ms.
func TestRateLimitCompliance(t *testing.T) {
	l := New(Brokerage, 2, 3)
	ctx := context.Background()

	// Drain the burst without blocking.
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx))
	}

	var gaps []time.Duration
	prev := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(ctx))
		now := time.Now()
		gaps = append(gaps, now.Sub(prev))
		prev = now
	}

	for _, g := range gaps {
		assert.GreaterOrEqual(t, g.Milliseconds(), int64(490), "inter-acquire gap should be >= ~500ms once burst is exhausted")
	}
}

func TestAcquire_RespectsContextCancellation(t *testing.T) {
	l := New(Filings, 0.001, 1)
	_ = l.Acquire(context.Background()) // drain the single burst token

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx)
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	f := NewFilingsDefault()
	assert.Equal(t, Filings, f.Host())
	b := NewBrokerageDefault()
	assert.Equal(t, Brokerage, b.Host())
}
