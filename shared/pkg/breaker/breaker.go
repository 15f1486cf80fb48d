// Package breaker wraps sony/gobreaker keyed per external domain, the same
// shape as the teacher's CircuitBreakerService.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/liveview-io/liveview/shared/pkg/logger"
)

// Registry owns one circuit breaker per named domain (provider or verifier
// source), created lazily on first use.
type Registry struct {
	mu        sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker
	threshold uint32
	timeout   time.Duration
	log       *logger.Logger
}

func NewRegistry(threshold int, recovery time.Duration, log *logger.Logger) *Registry {
	return &Registry{
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		threshold: uint32(threshold),
		timeout:   recovery,
		log:       log,
	}
}

func (r *Registry) get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     r.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if r.log != nil {
				r.log.Base().WithFields(map[string]interface{}{
					"breaker": name, "from": from.String(), "to": to.String(),
				}).Warn("circuit breaker state change")
			}
		},
	}

	cb := gobreaker.NewCircuitBreaker(settings)
	r.breakers[name] = cb
	return cb
}

// Execute runs fn through the named domain's breaker.
func (r *Registry) Execute(ctx context.Context, name string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	cb := r.get(name)
	return cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
}

// State reports the current breaker state for a domain, for health endpoints.
func (r *Registry) State(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb.State().String()
	}
	return "closed"
}

// ErrOpen is returned by gobreaker when a breaker is open.
var ErrOpen = gobreaker.ErrOpenState
