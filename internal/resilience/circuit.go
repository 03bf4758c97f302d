// Package resilience guards calls to external providers: a per-provider
// circuit breaker, transient error classification and a backoff retry used
// while dependencies come up.
package resilience

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the reset timeout elapses.
	CircuitOpen
	// CircuitHalfOpen lets a single probe through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = eris.New("resilience: circuit breaker is open")

// BreakerConfig controls circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive transient failures that
	// opens the circuit.
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	// ResetTimeoutSecs is how long the circuit stays open before a probe.
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeoutSecs <= 0 {
		c.ResetTimeoutSecs = 60
	}
	return c
}

// CircuitBreaker tracks the health of one provider. Only errors classified
// by IsTransient count toward the threshold; a bad request is the caller's
// fault and says nothing about provider health.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	lastErr  string

	now func() time.Time
}

// NewCircuitBreaker creates a breaker for the named provider.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{name: name, cfg: cfg.withDefaults(), now: time.Now}
}

// Execute runs fn through the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

// ExecuteVal is like Execute but preserves a return value.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.allow(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	cb.record(err)
	return val, err
}

// State returns the current state, reporting half-open once the reset
// timeout has elapsed on an open circuit.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout() {
		return CircuitHalfOpen
	}
	return cb.state
}

// Available reports whether the provider is currently accepting calls.
func (cb *CircuitBreaker) Available() bool {
	return cb.State() != CircuitOpen
}

// LastError returns the message of the last counted failure.
func (cb *CircuitBreaker) LastError() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastErr
}

func (cb *CircuitBreaker) resetTimeout() time.Duration {
	return time.Duration(cb.cfg.ResetTimeoutSecs) * time.Second
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return nil
	}
	if cb.now().Sub(cb.openedAt) >= cb.resetTimeout() {
		cb.transition(CircuitHalfOpen)
		return nil
	}
	return eris.Wrapf(ErrCircuitOpen, "resilience: %s", cb.name)
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil || !IsTransient(err) {
		cb.failures = 0
		if cb.state == CircuitHalfOpen {
			cb.transition(CircuitClosed)
		}
		return
	}

	cb.failures++
	cb.lastErr = err.Error()
	if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		cb.openedAt = cb.now()
		if cb.state != CircuitOpen {
			cb.transition(CircuitOpen)
		}
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	zap.L().Info("resilience: circuit state change",
		zap.String("provider", cb.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

// Breakers holds one circuit breaker per provider.
type Breakers struct {
	mu       sync.RWMutex
	cfg      BreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewBreakers creates an empty registry.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for provider, creating it on first use.
func (b *Breakers) Get(provider string) *CircuitBreaker {
	b.mu.RLock()
	cb, ok := b.breakers[provider]
	b.mu.RUnlock()
	if ok {
		return cb
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok = b.breakers[provider]; ok {
		return cb
	}
	cb = NewCircuitBreaker(provider, b.cfg)
	b.breakers[provider] = cb
	return cb
}

// Availability returns provider → available for every registered breaker.
func (b *Breakers) Availability() map[string]bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]bool, len(b.breakers))
	for name, cb := range b.breakers {
		out[name] = cb.Available()
	}
	return out
}

// Names returns the registered provider names in sorted order.
func (b *Breakers) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.breakers))
	for name := range b.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
