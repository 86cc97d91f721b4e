package ai

import (
	"context"
	"errors"
	"time"

	"compliance-rag-assistant/internal/logger"
	"compliance-rag-assistant/internal/telemetry"
	"compliance-rag-assistant/models"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// guard wraps a backend with pacing and a circuit breaker. Only transient
// failures count against the breaker.
type guard struct {
	name    string
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func newGuard(name string, rpm int, metrics *telemetry.Metrics) *guard {
	if rpm <= 0 {
		rpm = 60
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !models.IsTransient(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			if metrics != nil {
				metrics.RecordCircuitBreakerState(name, to.String())
			}
		},
	})

	// RPM limit with some buffer
	limiter := rate.NewLimiter(rate.Limit(float64(rpm)*0.9/60.0), max(1, rpm/10))

	return &guard{name: name, breaker: breaker, limiter: limiter}
}

// run waits for a rate token and executes fn inside the breaker. fn must
// return errors already classified into the models taxonomy.
func (g *guard) run(ctx context.Context, unavailable func(error) error, fn func() error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &models.RateLimitedError{
			Provider:   g.name,
			RetryAfter: time.Duration(float64(time.Second) / float64(g.limiter.Limit())),
			Err:        err,
		}
	}

	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return unavailable(err)
	}
	return err
}

func (g *guard) state() gobreaker.State {
	return g.breaker.State()
}
