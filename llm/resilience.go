package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState is the state of a ResilientGenerator's breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold"`
	Cooldown         time.Duration `json:"cooldown" yaml:"cooldown"`
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// ResilientConfig configures a ResilientGenerator.
type ResilientConfig struct {
	// Timeout bounds each call. Zero leaves the caller's deadline alone.
	Timeout        time.Duration        `json:"timeout" yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
}

// ResilientGenerator wraps a primary Generator with a per-call timeout and a
// circuit breaker, and answers from the fallback when the primary fails or
// the circuit is open. It does not retry.
type ResilientGenerator struct {
	primary  Generator
	fallback Generator
	config   ResilientConfig
	logger   *zap.Logger

	mu          sync.Mutex
	state       CircuitState
	failures    int
	openedAt    time.Time
	probeActive bool
	now         func() time.Time
}

// NewResilientGenerator creates the wrapper. fallback may be nil.
func NewResilientGenerator(primary, fallback Generator, config ResilientConfig, logger *zap.Logger) *ResilientGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CircuitBreaker.FailureThreshold <= 0 {
		config.CircuitBreaker = DefaultCircuitBreakerConfig()
	}
	return &ResilientGenerator{
		primary:  primary,
		fallback: fallback,
		config:   config,
		logger:   logger.With(zap.String("component", "llm_resilience")),
		now:      time.Now,
	}
}

// ErrCircuitOpen is the cause recorded when the breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State returns the breaker state.
func (g *ResilientGenerator) State() CircuitState {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.advance()
	return g.state
}

func (g *ResilientGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if !g.allow() {
		err := &Error{
			Code: ErrProviderUnavailable, Message: ErrCircuitOpen.Error(),
			HTTPStatus: http.StatusServiceUnavailable, Cause: ErrCircuitOpen,
		}
		return g.useFallback(ctx, req, err)
	}

	callCtx := ctx
	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	text, err := g.primary.Generate(callCtx, req)
	if err == nil {
		g.record(true)
		return text, nil
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !isLLMError(err) {
		err = &Error{
			Code:    ErrUpstreamTimeout,
			Message: fmt.Sprintf("generation exceeded %s", g.config.Timeout),
			Cause:   err, HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		}
	}
	g.record(false)
	return g.useFallback(ctx, req, err)
}

func (g *ResilientGenerator) useFallback(ctx context.Context, req GenerateRequest, cause error) (string, error) {
	if g.fallback == nil {
		return "", cause
	}
	g.logger.Warn("primary generator failed, using fallback", zap.Error(cause))
	text, err := g.fallback.Generate(ctx, req)
	if err != nil {
		return "", errors.Join(cause, err)
	}
	return text, nil
}

func (g *ResilientGenerator) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.advance()
	switch g.state {
	case CircuitOpen:
		return false
	case CircuitHalfOpen:
		if g.probeActive {
			return false
		}
		g.probeActive = true
	}
	return true
}

// advance moves an open breaker to half-open once the cooldown elapsed.
// Callers hold mu.
func (g *ResilientGenerator) advance() {
	if g.state == CircuitOpen && g.now().Sub(g.openedAt) >= g.config.CircuitBreaker.Cooldown {
		g.state = CircuitHalfOpen
		g.probeActive = false
	}
}

func (g *ResilientGenerator) record(success bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if success {
		if g.state != CircuitClosed {
			g.logger.Info("circuit closed")
		}
		g.state, g.failures, g.probeActive = CircuitClosed, 0, false
		return
	}
	g.failures++
	if g.state == CircuitHalfOpen || g.failures >= g.config.CircuitBreaker.FailureThreshold {
		if g.state != CircuitOpen {
			g.logger.Warn("circuit opened", zap.Int("failures", g.failures))
		}
		g.state, g.openedAt, g.probeActive = CircuitOpen, g.now(), false
	}
}

func isLLMError(err error) bool {
	var le *Error
	return errors.As(err, &le)
}
