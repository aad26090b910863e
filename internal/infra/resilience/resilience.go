// Package resilience provides fault-tolerance patterns for snapshot
// writes: retry with exponential backoff and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned by Do while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Config holds resilience parameters.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
}

// RetryWithBackoff executes fn with exponential backoff + jitter.
// It respects context cancellation.
func RetryWithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt < cfg.MaxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * cfg.InitialBackoff
			wait := backoff
			if half := int64(backoff / 2); half > 0 {
				wait += time.Duration(rand.Int63n(half))
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return lastErr
}

// NewCircuitBreaker creates a circuit breaker tuned for local storage:
// a run of consecutive failed writes opens it for a short cool-down.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,               // half-open: one trial write
		Interval:    0,               // closed: never reset counts on a timer
		Timeout:     5 * time.Second, // open -> half-open after 5s
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

// Breakers hands out one circuit breaker per store, so a store whose
// writes keep failing does not block writes to the others.
type Breakers struct {
	prefix string

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakers creates an empty set. Breaker names are prefix + "/" + store.
func NewBreakers(prefix string) *Breakers {
	return &Breakers{prefix: prefix, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

// For returns the breaker of store, creating it on first use.
func (b *Breakers) For(store string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	cb, ok := b.breakers[store]
	if !ok {
		cb = NewCircuitBreaker(b.prefix + "/" + store)
		b.breakers[store] = cb
	}
	return cb
}

// Do runs fn through the breaker, retrying inside a single breaker call.
// A rejected call returns an error wrapping ErrCircuitOpen.
func Do(ctx context.Context, cb *gobreaker.CircuitBreaker, cfg Config, fn func() error) error {
	_, err := cb.Execute(func() (any, error) {
		return nil, RetryWithBackoff(ctx, cfg, fn)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(ErrCircuitOpen, err)
	}
	return err
}
