package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPacer_FirstCallImmediate(t *testing.T) {
	p := NewPacer("gemini", time.Hour, zap.NewNop())

	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, time.Hour, p.Interval())
	assert.Equal(t, "gemini", p.Name())
}

func TestPacer_EnforcesInterval(t *testing.T) {
	p := NewPacer("deepseek", 80*time.Millisecond, nil)
	ctx := context.Background()

	require.NoError(t, p.Wait(ctx))
	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))

	// two paced calls after the first: at least ~2 intervals
	assert.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)
}

func TestPacer_ZeroIntervalDisabled(t *testing.T) {
	p := NewPacer("local", 0, nil)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, p.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPacer_ContextCanceled(t *testing.T) {
	p := NewPacer("gemini", time.Hour, nil)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pacer gemini")
}

func TestRegistry_SharesPacerPerProvider(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	var wg sync.WaitGroup
	got := make([]*Pacer, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = r.Get("gemini", 25*time.Second)
		}(i)
	}
	wg.Wait()

	for _, p := range got {
		assert.Same(t, got[0], p)
	}
	assert.Equal(t, 25*time.Second, r.Get("gemini", time.Second).Interval())
	assert.NotSame(t, got[0], r.Get("deepseek", 10*time.Second))
}
