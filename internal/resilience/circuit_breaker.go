// Package resilience guards the IPAM client boundary with a circuit breaker
// keyed per object-type family, so a failing server stops receiving calls
// immediately instead of waiting out client-side timeouts.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	recerr "github.com/DoesN0tCompute/bamreconciler/internal/errors"
)

// Config tunes the breaker's trip/reset behavior.
type Config struct {
	FailureThreshold uint32
	ResetTimeout     time.Duration
}

// CircuitBreaker wraps a gobreaker.CircuitBreaker behind the observable
// surface (GetState, GetFailureRate, Call) the executor and its tests expect,
// delegating the actual state machine to the library.
type CircuitBreaker struct {
	name string
	cb   *gobreaker.CircuitBreaker

	mu       sync.Mutex
	total    uint64
	failures uint64
}

func New(name string, cfg Config) *CircuitBreaker {
	c := &CircuitBreaker{name: name}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {},
	}
	c.cb = gobreaker.NewCircuitBreaker(settings)
	return c
}

// Call executes fn through the breaker. If the breaker is open, fn is never
// invoked and a ServerError-kind error is returned immediately.
func (c *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	c.total++
	c.mu.Unlock()

	result, err := c.cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		c.mu.Lock()
		c.failures++
		c.mu.Unlock()
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, recerr.Wrap(recerr.KindServer, err, "circuit breaker open for "+c.name)
		}
		return nil, err
	}
	return result, nil
}

// GetState returns the breaker's current state name.
func (c *CircuitBreaker) GetState() string {
	return c.cb.State().String()
}

// GetFailureRate returns the fraction of calls (since the breaker was
// constructed) that failed.
func (c *CircuitBreaker) GetFailureRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.total == 0 {
		return 0
	}
	return float64(c.failures) / float64(c.total)
}
