package throttle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() Config {
	return Config{
		InitialConcurrency:  2,
		MinConcurrency:      1,
		MaxConcurrency:      8,
		SuccessStreakToGrow: 3,
		LatencyBudgetMS:     100,
	}
}

func TestAcquireRespectsCapacity(t *testing.T) {
	th := New(baseConfig())
	ctx := context.Background()
	require.NoError(t, th.Acquire(ctx))
	require.NoError(t, th.Acquire(ctx))

	acquired := int32(0)
	go func() {
		_ = th.Acquire(ctx)
		atomic.AddInt32(&acquired, 1)
	}()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&acquired))

	th.Release()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&acquired))
}

func TestRecordFailureHalvesCapacityOnRateLimit(t *testing.T) {
	th := New(Config{InitialConcurrency: 8, MinConcurrency: 1, MaxConcurrency: 16, SuccessStreakToGrow: 3, LatencyBudgetMS: 100})
	th.RecordFailure(true)
	assert.Equal(t, int64(4), th.Metrics().Capacity)
}

func TestRecordFailureFloorsAtMinConcurrency(t *testing.T) {
	th := New(Config{InitialConcurrency: 1, MinConcurrency: 1, MaxConcurrency: 16, SuccessStreakToGrow: 3, LatencyBudgetMS: 100})
	th.RecordFailure(true)
	assert.Equal(t, int64(1), th.Metrics().Capacity)
}

func TestRecordSuccessGrowsAfterStreak(t *testing.T) {
	th := New(Config{InitialConcurrency: 2, MinConcurrency: 1, MaxConcurrency: 16, SuccessStreakToGrow: 3, LatencyBudgetMS: 100})
	th.RecordSuccess(10)
	th.RecordSuccess(10)
	assert.Equal(t, int64(2), th.Metrics().Capacity)
	th.RecordSuccess(10)
	assert.Equal(t, int64(3), th.Metrics().Capacity)
}

func TestRecordSuccessDoesNotGrowOnUnhealthyLatency(t *testing.T) {
	th := New(Config{InitialConcurrency: 2, MinConcurrency: 1, MaxConcurrency: 16, SuccessStreakToGrow: 2, LatencyBudgetMS: 10})
	th.RecordSuccess(500)
	th.RecordSuccess(500)
	assert.Equal(t, int64(2), th.Metrics().Capacity)
}

func TestAcquireCancelledByContext(t *testing.T) {
	th := New(Config{InitialConcurrency: 1, MinConcurrency: 1, MaxConcurrency: 1, SuccessStreakToGrow: 3, LatencyBudgetMS: 100})
	require.NoError(t, th.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := th.Acquire(ctx)
	assert.Error(t, err)
}
