// Package breaker implements per-service failure isolation. State is
// process-local for fast reads and mirrored best-effort into the ephemeral
// store so multi-instance deployments converge.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelscript/reelscript/internal/ephemeral"
	"github.com/reelscript/reelscript/internal/events"
	"github.com/reelscript/reelscript/internal/model"
)

// State is the breaker state machine position.
type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case HalfOpen:
		return "HALF_OPEN"
	case Open:
		return "OPEN"
	}
	return "UNKNOWN"
}

// Settings configure a single breaker.
type Settings struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	SuccessThreshold int
	FailureWindow    time.Duration
}

// Breaker is a per-service circuit breaker.
//
//	CLOSED    -> OPEN       after FailureThreshold consecutive failures
//	                        inside FailureWindow
//	OPEN      -> HALF_OPEN  once ResetTimeout has elapsed since opening
//	HALF_OPEN -> CLOSED     after SuccessThreshold successes
//	HALF_OPEN -> OPEN       on any failure
type Breaker struct {
	service  string
	settings Settings

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	lastFailure   time.Time
	openedAt      time.Time

	mirror ephemeral.Store // may be nil
	bus    *events.Bus     // may be nil
	log    zerolog.Logger
	now    func() time.Time
}

func New(service string, settings Settings, mirror ephemeral.Store, bus *events.Bus, log zerolog.Logger) *Breaker {
	return &Breaker{
		service:  service,
		settings: settings,
		state:    Closed,
		mirror:   mirror,
		bus:      bus,
		log:      log.With().Str("breaker", service).Logger(),
		now:      time.Now,
	}
}

// Service returns the service name this breaker guards.
func (b *Breaker) Service() string { return b.service }

// State returns the current state, applying the OPEN -> HALF_OPEN timer.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

// Allow reports whether a call may proceed. When the breaker is open it
// returns a CircuitOpenError carrying the time until the next probe.
func (b *Breaker) Allow(ctx context.Context) error {
	b.mu.Lock()
	b.maybeHalfOpenLocked()
	if b.state == Open {
		retryIn := b.settings.ResetTimeout - b.now().Sub(b.openedAt)
		if retryIn < 0 {
			retryIn = 0
		}
		b.mu.Unlock()
		return &model.CircuitOpenError{Service: b.service, RetryInMs: retryIn.Milliseconds()}
	}
	b.mu.Unlock()
	return nil
}

// Execute runs fn under breaker protection and records the outcome.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.Allow(ctx); err != nil {
		return err
	}
	err := fn(ctx)
	if err != nil {
		b.RecordFailure(ctx)
		return err
	}
	b.RecordSuccess(ctx)
	return nil
}

// RecordSuccess feeds a successful call into the state machine.
func (b *Breaker) RecordSuccess(ctx context.Context) {
	b.mu.Lock()
	b.maybeHalfOpenLocked()
	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.settings.SuccessThreshold {
			b.transitionLocked(ctx, Closed)
		}
	}
	b.mu.Unlock()
}

// RecordFailure feeds a failed call into the state machine.
func (b *Breaker) RecordFailure(ctx context.Context) {
	b.mu.Lock()
	b.maybeHalfOpenLocked()
	now := b.now()
	switch b.state {
	case Closed:
		// failures count only when consecutive within the window
		if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > b.settings.FailureWindow {
			b.failures = 0
		}
		b.failures++
		b.lastFailure = now
		if b.failures >= b.settings.FailureThreshold {
			b.transitionLocked(ctx, Open)
		}
	case HalfOpen:
		b.transitionLocked(ctx, Open)
	}
	b.mu.Unlock()
}

// maybeHalfOpenLocked applies the reset timer. Caller holds b.mu.
func (b *Breaker) maybeHalfOpenLocked() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.settings.ResetTimeout {
		b.state = HalfOpen
		b.successes = 0
		b.log.Info().Str("state", b.state.String()).Msg("breaker state changed")
		b.publish(HalfOpen)
	}
}

func (b *Breaker) transitionLocked(ctx context.Context, to State) {
	if b.state == to {
		return
	}
	b.state = to
	switch to {
	case Open:
		b.openedAt = b.now()
		b.log.Warn().Str("state", to.String()).Int("failures", b.failures).Msg("breaker state changed")
	case Closed:
		b.failures = 0
		b.successes = 0
		b.lastFailure = time.Time{}
		b.log.Info().Str("state", to.String()).Msg("breaker state changed")
	}
	b.publish(to)
	b.mirrorState(ctx, to)
}

func (b *Breaker) publish(to State) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(events.Event{
		Kind:    events.EventBreakerStateChanged,
		Service: b.service,
		State:   to.String(),
	})
}

// mirrorState writes the state to the shared store. Best effort: a mirror
// failure must never fail the guarded call.
func (b *Breaker) mirrorState(ctx context.Context, to State) {
	if b.mirror == nil {
		return
	}
	ttl := 2 * b.settings.ResetTimeout
	if err := b.mirror.Set(ctx, ephemeral.CircuitKey(b.service), to.String(), ttl); err != nil {
		b.log.Debug().Err(err).Msg("breaker mirror write failed")
	}
}

// SyncFromMirror pulls the shared state. A remote OPEN opens the local
// breaker; mirror errors are ignored, the local view wins.
func (b *Breaker) SyncFromMirror(ctx context.Context) {
	if b.mirror == nil {
		return
	}
	val, ok, err := b.mirror.Get(ctx, ephemeral.CircuitKey(b.service))
	if err != nil || !ok {
		return
	}
	if val == Open.String() {
		b.mu.Lock()
		if b.state == Closed {
			b.transitionLockedNoMirror(Open)
		}
		b.mu.Unlock()
	}
}

func (b *Breaker) transitionLockedNoMirror(to State) {
	if b.state == to {
		return
	}
	b.state = to
	if to == Open {
		b.openedAt = b.now()
	}
	b.log.Warn().Str("state", to.String()).Msg("breaker state adopted from mirror")
	b.publish(to)
}
