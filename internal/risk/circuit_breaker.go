package risk

import (
	"sync"
	"time"

	"tradesim/pkg/telemetry"

	"github.com/shopspring/decimal"
)

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
)

func (s CircuitState) String() string {
	if s == CircuitOpen {
		return "open"
	}
	return "closed"
}

// CircuitConfig bounds realized losses. Zero values disable a threshold.
type CircuitConfig struct {
	MaxConsecutiveLosses int
	MaxDrawdownAmount    decimal.Decimal
	CooldownPeriod       time.Duration
}

// CircuitStatus is a point-in-time view of the breaker.
type CircuitStatus struct {
	State             CircuitState
	Reason            string
	ConsecutiveLosses int
	TotalPnL          decimal.Decimal
	OpenedAt          time.Time
}

// CircuitBreaker blocks new exposure after a losing run. Time is supplied
// by the caller so backtests trip and cool down on tick time.
type CircuitBreaker struct {
	mu                sync.RWMutex
	symbol            string
	state             CircuitState
	config            CircuitConfig
	consecutiveLosses int
	totalPnL          decimal.Decimal
	lastTripped       time.Time
	reason            string
	metrics           *telemetry.MetricsHolder
}

// NewCircuitBreaker publishes its state to metrics, or to the global
// holder when metrics is nil.
func NewCircuitBreaker(symbol string, config CircuitConfig, metrics *telemetry.MetricsHolder) *CircuitBreaker {
	if metrics == nil {
		metrics = telemetry.GetGlobalMetrics()
	}
	return &CircuitBreaker{
		symbol:  symbol,
		state:   CircuitClosed,
		config:  config,
		metrics: metrics,
	}
}

// RecordTrade feeds one realized net P&L observed at tick time at.
func (cb *CircuitBreaker) RecordTrade(pnl decimal.Decimal, at time.Time) (tripped bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if pnl.IsNegative() {
		cb.consecutiveLosses++
	} else {
		cb.consecutiveLosses = 0
	}
	cb.totalPnL = cb.totalPnL.Add(pnl)

	wasOpen := cb.state == CircuitOpen
	cb.checkThresholds(at)
	return !wasOpen && cb.state == CircuitOpen
}

func (cb *CircuitBreaker) checkThresholds(at time.Time) {
	if cb.state == CircuitOpen {
		return
	}

	if cb.config.MaxConsecutiveLosses > 0 && cb.consecutiveLosses >= cb.config.MaxConsecutiveLosses {
		cb.trip("max consecutive losses reached", at)
		return
	}

	if cb.config.MaxDrawdownAmount.IsPositive() && cb.totalPnL.LessThan(cb.config.MaxDrawdownAmount.Neg()) {
		cb.trip("max drawdown amount reached", at)
	}
}

func (cb *CircuitBreaker) trip(reason string, at time.Time) {
	cb.state = CircuitOpen
	cb.lastTripped = at
	cb.reason = reason
	cb.metrics.SetCircuitBreakerOpen(cb.symbol, true)
}

func (cb *CircuitBreaker) reset() {
	cb.state = CircuitClosed
	cb.consecutiveLosses = 0
	cb.totalPnL = decimal.Zero
	cb.reason = ""
	cb.metrics.SetCircuitBreakerOpen(cb.symbol, false)
}

// IsTripped reports whether new exposure is blocked at now, closing the
// breaker once the cooldown has elapsed.
func (cb *CircuitBreaker) IsTripped(now time.Time) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return false
	}
	if cb.config.CooldownPeriod > 0 && now.Sub(cb.lastTripped) >= cb.config.CooldownPeriod {
		cb.reset()
		return false
	}
	return true
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.reset()
}

// Open manually trips the circuit breaker
func (cb *CircuitBreaker) Open(reason string, at time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trip(reason, at)
}

func (cb *CircuitBreaker) Status() CircuitStatus {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return CircuitStatus{
		State:             cb.state,
		Reason:            cb.reason,
		ConsecutiveLosses: cb.consecutiveLosses,
		TotalPnL:          cb.totalPnL,
		OpenedAt:          cb.lastTripped,
	}
}
