// Package throttle implements the adaptive concurrency limiter the executor
// uses to bound in-flight IPAM calls and react to latency/rate-limit
// feedback.
package throttle

import (
	"context"
	"sync"

	"github.com/DoesN0tCompute/bamreconciler/internal/mathutil"
)

// Config bounds and tunes the throttle's adaptive behavior.
type Config struct {
	InitialConcurrency  int
	MinConcurrency      int
	MaxConcurrency      int
	SuccessStreakToGrow int
	LatencyBudgetMS     int
	WindowSize          int // sliding window size for latency stats; 0 defaults to 50
}

// Throttle is a mutable-capacity token pool: acquire before dispatch,
// release after success or failure. Capacity changes take effect on the next
// acquire. The pool is a gate guarded by a mutex and condition variable
// rather than a fixed-size semaphore, because golang.org/x/sync/semaphore
// has no resize operation and capacity must shrink and grow at runtime.
type Throttle struct {
	cfg Config

	mu                sync.Mutex
	cond              *sync.Cond
	capacity          int64
	inFlight          int64
	successStreak     int
	totalAcquires     int64
	rateLimitBackoffs int64
	latency           *mathutil.Window
}

func New(cfg Config) *Throttle {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 50
	}
	t := &Throttle{
		cfg:      cfg,
		capacity: int64(cfg.InitialConcurrency),
		latency:  mathutil.NewWindow(cfg.WindowSize),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Acquire blocks until a slot is available under the current capacity, or
// ctx is cancelled.
func (t *Throttle) Acquire(ctx context.Context) error {
	done := make(chan struct{})
	var acquired bool
	go func() {
		t.mu.Lock()
		for t.inFlight >= t.capacity {
			t.cond.Wait()
		}
		t.inFlight++
		t.totalAcquires++
		acquired = true
		t.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		go func() {
			<-done
			if acquired {
				t.Release()
			}
		}()
		return ctx.Err()
	}
}

// Release returns the slot acquired by Acquire and wakes one waiter.
func (t *Throttle) Release() {
	t.mu.Lock()
	t.inFlight--
	t.mu.Unlock()
	t.cond.Signal()
}

// RecordSuccess updates latency statistics and may grow capacity after a
// sustained streak of healthy-latency successes.
func (t *Throttle) RecordSuccess(latencyMS float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latency.Add(latencyMS)
	budget := float64(t.cfg.LatencyBudgetMS)
	if t.latency.Len() >= 5 {
		budget = t.latency.Mean() + t.latency.StdDev()
	}
	if latencyMS <= budget {
		t.successStreak++
	} else {
		t.successStreak = 0
	}
	if t.successStreak >= t.cfg.SuccessStreakToGrow && t.capacity < int64(t.cfg.MaxConcurrency) {
		t.capacity++
		t.successStreak = 0
		t.cond.Broadcast()
	}
}

// RecordFailure resets the success streak and, on a rate-limit signal, halves
// capacity (floored at MinConcurrency).
func (t *Throttle) RecordFailure(isRateLimit bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successStreak = 0
	if isRateLimit {
		t.rateLimitBackoffs++
		newCap := t.capacity / 2
		if newCap < int64(t.cfg.MinConcurrency) {
			newCap = int64(t.cfg.MinConcurrency)
		}
		t.capacity = newCap
	}
}

// Metrics is a point-in-time snapshot of throttle state.
type Metrics struct {
	Capacity          int64
	InFlight          int64
	TotalAcquires     int64
	RateLimitBackoffs int64
	MeanLatencyMS     float64
	StdDevLatencyMS   float64
}

func (t *Throttle) Metrics() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Metrics{
		Capacity:          t.capacity,
		InFlight:          t.inFlight,
		TotalAcquires:     t.totalAcquires,
		RateLimitBackoffs: t.rateLimitBackoffs,
		MeanLatencyMS:     t.latency.Mean(),
		StdDevLatencyMS:   t.latency.StdDev(),
	}
}
