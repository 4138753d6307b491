package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrBreakerOpen is returned without calling the store while the breaker is open.
var ErrBreakerOpen = eris.New("resilience: breaker open")

// BreakerState is the breaker's position.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker opens after FailureThreshold consecutive transient failures and
// lets a single probe through once Cooldown has elapsed.
type Breaker struct {
	FailureThreshold int
	Cooldown         time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	now      func() time.Time
}

// NewBreaker returns a closed breaker. Non-positive arguments use 5 failures
// and a 30s cooldown.
func NewBreaker(failureThreshold int, cooldown time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{FailureThreshold: failureThreshold, Cooldown: cooldown, now: time.Now}
}

// State returns the current state, reporting half-open once the cooldown of
// an open breaker has passed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.Cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.Cooldown {
			return ErrBreakerOpen
		}
		b.setState(BreakerHalfOpen)
		return nil
	case BreakerHalfOpen:
		// One probe at a time.
		return ErrBreakerOpen
	default:
		return nil
	}
}

// record only counts transient failures; a not-found or validation error
// says nothing about store health.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil || !IsTransient(err) {
		b.failures = 0
		if b.state != BreakerClosed {
			b.setState(BreakerClosed)
		}
		return
	}
	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.FailureThreshold {
		b.openedAt = b.now()
		b.setState(BreakerOpen)
	}
}

func (b *Breaker) setState(to BreakerState) {
	if b.state == to {
		return
	}
	zap.L().Warn("resilience: breaker state change",
		zap.Stringer("from", b.state),
		zap.Stringer("to", to),
		zap.Int("failures", b.failures),
	)
	b.state = to
}

// Guard combines a retry policy with an optional breaker.
type Guard struct {
	Retry   RetryConfig
	Breaker *Breaker
}

// Call runs fn under g: the breaker is consulted once per call and the
// retries happen inside it.
func Call[T any](ctx context.Context, g Guard, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if g.Breaker != nil {
		if err := g.Breaker.allow(); err != nil {
			return zero, eris.Wrapf(err, "resilience: %s", op)
		}
	}
	cfg := g.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = RetryLogger(op)
	}
	val, err := DoVal(ctx, cfg, fn)
	if g.Breaker != nil {
		g.Breaker.record(err)
	}
	return val, err
}
