package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelscript/reelscript/internal/ephemeral"
	"github.com/reelscript/reelscript/internal/ephemeral/ephemeraltest"
	"github.com/reelscript/reelscript/internal/events"
	"github.com/reelscript/reelscript/internal/model"
)

func testSettings() Settings {
	return Settings{
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 2,
		FailureWindow:    60 * time.Second,
	}
}

func newTestBreaker(t *testing.T, mirror ephemeral.Store) (*Breaker, *time.Time) {
	t.Helper()
	b := New("generation", testSettings(), mirror, nil, zerolog.Nop())
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(t, nil)

	for i := 0; i < 2; i++ {
		b.RecordFailure(ctx)
		require.Equal(t, Closed, b.State())
	}
	b.RecordFailure(ctx)
	require.Equal(t, Open, b.State())

	err := b.Allow(ctx)
	var co *model.CircuitOpenError
	require.ErrorAs(t, err, &co)
	assert.Equal(t, "generation", co.Service)
	assert.LessOrEqual(t, co.RetryInMs, int64(30000))
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(t, nil)

	b.RecordFailure(ctx)
	b.RecordFailure(ctx)
	b.RecordSuccess(ctx)
	b.RecordFailure(ctx)
	b.RecordFailure(ctx)
	require.Equal(t, Closed, b.State())
	b.RecordFailure(ctx)
	require.Equal(t, Open, b.State())
}

func TestBreakerWindowExpiryResetsCount(t *testing.T) {
	ctx := context.Background()
	b, now := newTestBreaker(t, nil)

	b.RecordFailure(ctx)
	b.RecordFailure(ctx)
	*now = now.Add(2 * time.Minute) // past the failure window
	b.RecordFailure(ctx)
	b.RecordFailure(ctx)
	require.Equal(t, Closed, b.State())
	b.RecordFailure(ctx)
	require.Equal(t, Open, b.State())
}

func TestBreakerHalfOpenCycle(t *testing.T) {
	ctx := context.Background()
	b, now := newTestBreaker(t, nil)

	for i := 0; i < 3; i++ {
		b.RecordFailure(ctx)
	}
	require.Equal(t, Open, b.State())

	*now = now.Add(31 * time.Second)
	require.Equal(t, HalfOpen, b.State())
	require.NoError(t, b.Allow(ctx))

	// one failure in HALF_OPEN reopens
	b.RecordFailure(ctx)
	require.Equal(t, Open, b.State())

	*now = now.Add(31 * time.Second)
	require.Equal(t, HalfOpen, b.State())
	b.RecordSuccess(ctx)
	require.Equal(t, HalfOpen, b.State())
	b.RecordSuccess(ctx)
	require.Equal(t, Closed, b.State())
}

func TestBreakerExecute(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(t, nil)

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		err := b.Execute(ctx, func(ctx context.Context) error { return boom })
		require.ErrorIs(t, err, boom)
	}

	called := false
	err := b.Execute(ctx, func(ctx context.Context) error { called = true; return nil })
	var co *model.CircuitOpenError
	require.ErrorAs(t, err, &co)
	assert.False(t, called)
}

func TestBreakerMirrorFailureDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	mirror := ephemeraltest.New()
	mirror.Fail = errors.New("mirror down")
	b, _ := newTestBreaker(t, mirror)

	// mirror errors are swallowed; state machine still works locally
	for i := 0; i < 3; i++ {
		b.RecordFailure(ctx)
	}
	require.Equal(t, Open, b.State())

	// with the mirror unreachable a closed breaker keeps allowing
	b2, _ := newTestBreaker(t, mirror)
	b2.SyncFromMirror(ctx)
	require.NoError(t, b2.Allow(ctx))
}

func TestBreakerMirrorAdoptsOpenState(t *testing.T) {
	ctx := context.Background()
	mirror := ephemeraltest.New()
	require.NoError(t, mirror.Set(ctx, ephemeral.CircuitKey("generation"), "OPEN", time.Minute))

	b, _ := newTestBreaker(t, mirror)
	b.SyncFromMirror(ctx)
	require.Equal(t, Open, b.State())
}

func TestBreakerPublishesStateChanges(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus(8)
	b := New("download", testSettings(), nil, bus, zerolog.Nop())
	for i := 0; i < 3; i++ {
		b.RecordFailure(ctx)
	}

	select {
	case evt := <-bus.Subscribe():
		assert.Equal(t, events.EventBreakerStateChanged, evt.Kind)
		assert.Equal(t, "download", evt.Service)
		assert.Equal(t, "OPEN", evt.State)
	default:
		t.Fatal("expected a breaker event")
	}
}

func TestRegistryReturnsSameBreaker(t *testing.T) {
	r := NewRegistry(testSettings(), nil, nil, zerolog.Nop())
	b1 := r.Get("upload")
	b2 := r.Get("upload")
	require.Same(t, b1, b2)

	states := r.States()
	assert.Equal(t, Closed, states["upload"])
}
