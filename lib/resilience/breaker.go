// Package resilience guards resource factories with a circuit breaker, so
// a pool whose backend keeps refusing connections fails Acquire at once
// instead of paying a dial timeout on every call.
//
// State transitions:
//
//	Closed (normal) -> Open (failing) -> HalfOpen (probing) -> Closed
//	                     ^                    |
//	                     +--------------------+ (if a trial fails)
package resilience

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/go-i2p/sqlpool/lib/errors"
)

// ErrOpen is returned instead of dialing while the breaker is open.
var ErrOpen = apperrors.ErrBreakerOpen

// State is a breaker state.
type State int

const (
	// Closed lets every dial through.
	Closed State = iota
	// Open rejects dials until the cooldown has passed.
	Open
	// HalfOpen lets a limited number of trial dials through.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config configures a Breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that close it.
	SuccessThreshold int
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// MaxHalfOpen caps concurrent trials while half-open.
	MaxHalfOpen int
	// Now is the time source; nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns defaults suited to database dialing.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Cooldown:         10 * time.Second,
		MaxHalfOpen:      1,
	}
}

// Breaker is a circuit breaker.
type Breaker struct {
	mu     sync.Mutex
	name   string
	config Config
	now    func() time.Time

	state     State
	failures  int
	successes int
	trials    int
	openedAt  time.Time
	lastError error
}

// New creates a breaker. Non-positive config fields take their defaults.
func New(name string, cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.MaxHalfOpen <= 0 {
		cfg.MaxHalfOpen = def.MaxHalfOpen
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Breaker{name: name, config: cfg, now: now}
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state. An open breaker whose cooldown has
// passed reports HalfOpen.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.config.Cooldown {
		return HalfOpen
	}
	return b.state
}

// Allow reports whether a call may proceed. Every allowed call must be
// followed by Success or Failure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			BreakerRejections.Inc()
			return false
		}
		b.transition(HalfOpen)
		b.trials = 1
		return true
	default:
		if b.trials < b.config.MaxHalfOpen {
			b.trials++
			return true
		}
		BreakerRejections.Inc()
		return false
	}
}

// Success records a successful call.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		b.trials--
		if b.successes >= b.config.SuccessThreshold {
			b.transition(Closed)
		}
	}
}

// Failure records a failed call.
func (b *Breaker) Failure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastError = err
	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.transition(Open)
		}
	case HalfOpen:
		b.transition(Open)
	}
}

// Abandon gives back a call that ended without telling anything about the
// backend, such as one whose context was cancelled.
func (b *Breaker) Abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen && b.trials > 0 {
		b.trials--
	}
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(Closed)
	b.lastError = nil
}

// transition must be called with the lock held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.failures = 0
	b.successes = 0
	b.trials = 0
	if to == Open {
		b.openedAt = b.now()
	}
	BreakerState.Set(int64(to))
	if from == to {
		return
	}
	if to == Open {
		BreakerTrips.Inc()
	}

	entry := log.WithField("breaker", b.name).
		WithField("from", from.String()).
		WithField("to", to.String())
	if to == Open && b.lastError != nil {
		entry = entry.WithError(b.lastError)
	}
	entry.Warn("circuit breaker state transition")
}

// Stats is a snapshot of a breaker.
type Stats struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Failures  int    `json:"failures"`
	LastError string `json:"last_error,omitempty"`
}

// Stats returns a snapshot of the breaker.
func (b *Breaker) Stats() Stats {
	state := b.State()
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Stats{
		Name:     b.name,
		State:    state.String(),
		Failures: b.failures,
	}
	if b.lastError != nil {
		s.LastError = b.lastError.Error()
	}
	return s
}

// Execute runs fn if the breaker allows it and records the outcome.
// Failures caused by ctx ending are not held against the backend.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !b.Allow() {
		return ErrOpen
	}
	if err := ctx.Err(); err != nil {
		b.Abandon()
		return err
	}
	if err := fn(ctx); err != nil {
		if ctx.Err() != nil {
			b.Abandon()
			return err
		}
		b.Failure(err)
		return err
	}
	b.Success()
	return nil
}
