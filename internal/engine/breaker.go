package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/pelden/lingobridge/internal/history"
)

// Breaker wraps an Engine with a circuit breaker so a dead or rate-limited
// backend fails fast instead of queueing requests against it.
type Breaker struct {
	inner Engine
	cb    *gobreaker.CircuitBreaker
}

// WithBreaker wraps e. The circuit opens after three consecutive failures
// and probes again after 30 seconds.
func WithBreaker(e Engine) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        e.Name(),
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &Breaker{inner: e, cb: cb}
}

func (b *Breaker) Name() string { return b.inner.Name() }

func (b *Breaker) Translate(ctx context.Context, req Request) (*history.TranslationResult, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.inner.Translate(ctx, req)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, fmt.Errorf("translation engine %s unavailable: %w", b.inner.Name(), err)
	}
	if err != nil {
		return nil, err
	}
	return v.(*history.TranslationResult), nil
}
