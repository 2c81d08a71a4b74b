package flight

import (
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/pdl/orcastream/internal/adapter/metrics"
)

// Breaker guards DoGet calls so a failing server is not hammered by every poll loop.
type Breaker struct {
	cb circuitbreaker.CircuitBreaker[any]
}

// NewBreaker opens after a 60% failure rate over at least 5 calls within 10s, half-opens after
// 30s and closes again on the first success. m may be nil.
func NewBreaker(m *metrics.FlightMetrics) *Breaker {
	return newBreaker(m, 30*time.Second)
}

func newBreaker(m *metrics.FlightMetrics, delay time.Duration) *Breaker {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(delay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "flight",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			if m != nil {
				m.BreakerState.Set(stateToFloat(e.NewState))
			}
		}).
		Build()

	return &Breaker{cb: cb}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

// Run executes fn if the breaker permits it and records the outcome. It returns
// circuitbreaker.ErrOpen without calling fn while the breaker is open.
func (b *Breaker) Run(fn func() error) error {
	if !b.cb.TryAcquirePermit() {
		return circuitbreaker.ErrOpen
	}
	if err := fn(); err != nil {
		b.cb.RecordError(err)
		return err
	}
	b.cb.RecordSuccess()
	return nil
}

// State returns the current breaker state.
func (b *Breaker) State() circuitbreaker.State {
	return b.cb.State()
}
