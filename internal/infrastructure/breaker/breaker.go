// Package breaker builds per-collaborator circuit breakers on top of sony/gobreaker.
package breaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

// Settings configures when a breaker opens and how long it stays open.
type Settings struct {
	// ConsecutiveFailures trips the breaker once reached. Zero disables the rule.
	ConsecutiveFailures uint32
	// FailureRatio trips the breaker once MinRequests calls in the current interval fail at this ratio. Zero disables the rule.
	FailureRatio float64
	MinRequests  uint32
	// Interval resets closed-state counts. Zero keeps counts until the next state change.
	Interval time.Duration
	// CoolDown is how long the breaker stays open before allowing a trial call.
	CoolDown time.Duration
	// HalfOpenRequests is the number of trial calls allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultSettings trips after five consecutive failures and cools down for 30 seconds.
func DefaultSettings() Settings {
	return Settings{
		ConsecutiveFailures: 5,
		FailureRatio:        0.5,
		MinRequests:         10,
		Interval:            60 * time.Second,
		CoolDown:            30 * time.Second,
		HalfOpenRequests:    1,
	}
}

// New returns a breaker for one collaborator. Only collaborator failures count against it;
// business rejections pass through as successful calls.
func New(name string, s Settings, tel observability.Observability) *gobreaker.CircuitBreaker {
	if tel == nil {
		tel = observability.Nop()
	}
	logger := tel.Logger().With(observability.F("component", "circuit_breaker"), observability.F("breaker", name))
	transitions := tel.Metrics().Counter(observability.MBreakerTransitions)
	if s.HalfOpenRequests == 0 {
		s.HalfOpenRequests = 1
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenRequests,
		Interval:    s.Interval,
		Timeout:     s.CoolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if s.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= s.ConsecutiveFailures {
				return true
			}
			if s.FailureRatio > 0 && counts.Requests >= s.MinRequests && counts.Requests > 0 {
				return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
			}
			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit_breaker_state_changed",
				observability.F("from", from.String()),
				observability.F("to", to.String()),
			)
			transitions.Add(1,
				observability.L("breaker", name),
				observability.L("from", from.String()),
				observability.L("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, fault.ErrCollaboratorUnavailable)
		},
	})
}

// Execute runs fn through cb and returns its typed result.
func Execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if IsOpen(err) {
			return *new(T), fault.Unavailable(cb.Name(), err)
		}
		if res != nil {
			if typed, ok := res.(T); ok {
				return typed, err
			}
		}
		return *new(T), err
	}
	return res.(T), nil
}

// IsOpen reports whether err came from a short-circuited call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
