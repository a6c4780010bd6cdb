package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myeongjunkim/dart-deep-search/internal/errkind"
)

func TestLimiter_AcquireWithinQuota(t *testing.T) {
	l := newLimiter("test", serviceConfig{MaxCalls: 5, Window: time.Minute, Burst: 5})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		wait, err := l.Acquire(ctx)
		require.NoError(t, err)
		assert.Zero(t, wait)
		l.Release()
	}

	stats := l.StatsSnapshot()
	assert.Equal(t, int64(5), stats.TotalCalls)
	assert.Equal(t, int64(0), stats.ThrottledCalls)
}

func TestLimiter_ThrottlesOverQuota(t *testing.T) {
	l := newLimiter("test", serviceConfig{MaxCalls: 2, Window: 80 * time.Millisecond, Burst: 5})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := l.Acquire(ctx)
		require.NoError(t, err)
		l.Release()
	}

	start := time.Now()
	wait, err := l.Acquire(ctx)
	require.NoError(t, err)
	l.Release()

	assert.Greater(t, wait, time.Duration(0))
	assert.GreaterOrEqual(t, time.Since(start), wait)

	stats := l.StatsSnapshot()
	assert.Equal(t, int64(1), stats.ThrottledCalls)
}

func TestLimiter_AcquireCancelled(t *testing.T) {
	l := newLimiter("test", serviceConfig{MaxCalls: 1, Window: time.Hour, Burst: 5})
	ctx := context.Background()
	_, err := l.Acquire(ctx)
	require.NoError(t, err)
	l.Release()

	cancelCtx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = l.Acquire(cancelCtx)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.Cancelled))
}

func TestLimiter_ConcurrentBurstRespected(t *testing.T) {
	l := newLimiter("test", serviceConfig{MaxCalls: 1000, Window: time.Minute, Burst: 3})
	ctx := context.Background()

	var inFlight, maxObserved int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Acquire(ctx)
			require.NoError(t, err)
			mu.Lock()
			inFlight++
			if inFlight > maxObserved {
				maxObserved = inFlight
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			l.Release()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxObserved, int64(3))
}

func TestMulti_UsesDefaultConfigs(t *testing.T) {
	m := NewMulti()

	dart := m.For("dart_api")
	assert.Equal(t, 100, dart.cfg.MaxCalls)
	assert.Equal(t, 20, dart.cfg.Burst)

	llm := m.For("llm")
	assert.Equal(t, 60, llm.cfg.MaxCalls)

	other := m.For("unknown_service")
	assert.Equal(t, fallbackConfig.MaxCalls, other.cfg.MaxCalls)
}

func TestMulti_AllStats(t *testing.T) {
	m := NewMulti()
	ctx := context.Background()

	_, err := m.Acquire(ctx, "dart_api")
	require.NoError(t, err)
	m.Release("dart_api")

	stats := m.AllStats()
	require.Contains(t, stats, "dart_api")
	assert.Equal(t, int64(1), stats["dart_api"].TotalCalls)
}

func TestStats_ThrottleRateAndAvgWait(t *testing.T) {
	s := Stats{TotalCalls: 10, ThrottledCalls: 2, TotalWaitTime: 4 * time.Second}
	assert.InDelta(t, 0.2, s.ThrottleRate(), 0.0001)
	assert.Equal(t, 2*time.Second, s.AvgWaitTime())

	empty := Stats{}
	assert.Zero(t, empty.ThrottleRate())
	assert.Zero(t, empty.AvgWaitTime())
}
