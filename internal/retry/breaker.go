// Package retry guards outbound dials to a peer that may not be
// listening yet.
package retry

import (
	"fmt"
	"sync"
	"time"

	gerrors "oscgate/internal/errors"
)

// ── Breaker state ────────────────────────────────────────────────────

// State represents the breaker's operational state.
type State int

const (
	// StateClosed is normal operation: dials pass through.
	StateClosed State = iota
	// StateOpen means the peer keeps refusing: dials are rejected.
	StateOpen
	// StateHalfOpen lets a single dial through to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ── Configuration ────────────────────────────────────────────────────

// BreakerConfig configures a [Breaker].
type BreakerConfig struct {
	// Threshold is the number of consecutive failures before the
	// breaker opens (default 3).
	Threshold int
	// Cooldown is how long the breaker stays open before allowing a
	// half-open probe (default 2s).
	Cooldown time.Duration
	// OnStateChange is called whenever the state transitions.  It runs
	// under the lock, so keep it fast.
	OnStateChange func(from, to State)
}

const (
	defaultThreshold = 3
	defaultCooldown  = 2 * time.Second
)

// ── Breaker ──────────────────────────────────────────────────────────

// Breaker stops a sender from dialling an absent peer on every event.
// After Threshold consecutive failures it rejects calls with an error
// wrapping errors.ErrCircuitOpen until Cooldown has elapsed; the next
// call is then let through, and its outcome closes or reopens the
// breaker.
type Breaker struct {
	mu            sync.Mutex
	state         State
	failures      int
	threshold     int
	cooldown      time.Duration
	openedAt      time.Time
	onStateChange func(from, to State)
}

// NewBreaker creates a breaker.  A nil config selects the defaults.
func NewBreaker(cfg *BreakerConfig) *Breaker {
	b := &Breaker{threshold: defaultThreshold, cooldown: defaultCooldown}
	if cfg != nil {
		if cfg.Threshold > 0 {
			b.threshold = cfg.Threshold
		}
		if cfg.Cooldown > 0 {
			b.cooldown = cfg.Cooldown
		}
		b.onStateChange = cfg.OnStateChange
	}
	return b
}

// Do runs fn through the breaker.  When the breaker is open fn is not
// called.
func (b *Breaker) Do(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

// CurrentState returns the current state.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset forces the breaker back to closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.transition(StateClosed)
}

// ── internal ─────────────────────────────────────────────────────────

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	since := time.Since(b.openedAt)
	if since >= b.cooldown {
		b.transition(StateHalfOpen)
		return nil
	}
	return fmt.Errorf("%w: %d consecutive failures, retry in %v",
		gerrors.ErrCircuitOpen, b.failures, (b.cooldown - since).Round(time.Millisecond))
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		b.transition(StateClosed)
		return
	}
	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.openedAt = time.Now()
		b.transition(StateOpen)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}
