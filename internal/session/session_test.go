package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelscript/reelscript/internal/ephemeral"
	"github.com/reelscript/reelscript/internal/ephemeral/ephemeraltest"
	"github.com/reelscript/reelscript/internal/model"
)

const sub = "1234567890"

func newManager(t *testing.T) (*Manager, *ephemeraltest.Memory) {
	t.Helper()
	eph := ephemeraltest.New()
	return NewManager(eph, 30*time.Minute, zerolog.Nop()), eph
}

func TestGetConstructsFreshSession(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	sc, err := m.Get(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, sub, sc.SubscriberID)
	assert.Equal(t, model.SessionIdle, sc.State)
}

func TestObserveURLResetsVariationCount(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	sc, err := m.ObserveURL(ctx, sub, "https://www.instagram.com/reel/AAA")
	require.NoError(t, err)
	assert.Equal(t, model.SessionAwaitingIdea, sc.State)
	assert.Zero(t, sc.VariationCount)

	_, err = m.ObserveResult(ctx, sub, "hash1", "pub1")
	require.NoError(t, err)

	sc, err = m.ObserveURL(ctx, sub, "https://www.instagram.com/reel/BBB")
	require.NoError(t, err)
	assert.Zero(t, sc.VariationCount)
	assert.Equal(t, "https://www.instagram.com/reel/BBB", sc.LastURL)
}

func TestObserveIdeaRepeatDetection(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	url := "https://www.instagram.com/reel/AAA"

	sc, repeat, err := m.ObserveIdea(ctx, sub, url, "Morning Routine")
	require.NoError(t, err)
	assert.False(t, repeat)
	assert.Equal(t, url, sc.LastURL)

	// same idea modulo case and surrounding space is a redo of the family
	_, repeat, err = m.ObserveIdea(ctx, sub, url, "  morning routine ")
	require.NoError(t, err)
	assert.True(t, repeat)

	// the same idea against a different reel is a new family
	_, repeat, err = m.ObserveIdea(ctx, sub, "https://www.instagram.com/reel/BBB", "Morning Routine")
	require.NoError(t, err)
	assert.False(t, repeat)

	sc, repeat, err = m.ObserveIdea(ctx, sub, "https://www.instagram.com/reel/BBB", "evening routine")
	require.NoError(t, err)
	assert.False(t, repeat)
	assert.Equal(t, "evening routine", sc.LastIdea)
	assert.Zero(t, sc.VariationCount)
}

func TestObserveResultAdvancesState(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	_, err := m.MarkProcessing(ctx, sub, "job-1")
	require.NoError(t, err)

	sc, err := m.ObserveResult(ctx, sub, "hash1", "pub1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionAwaitingConfirm, sc.State)
	assert.Equal(t, "hash1", sc.LastRequestHash)
	assert.Equal(t, "pub1", sc.LastScriptID)
	assert.Empty(t, sc.ActiveJobID)
	assert.Equal(t, 1, sc.VariationCount)
}

func TestSessionTTLRefreshedOnWrite(t *testing.T) {
	ctx := context.Background()
	eph := ephemeraltest.New()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	eph.SetClock(func() time.Time { return now })
	m := NewManager(eph, 30*time.Minute, zerolog.Nop())

	_, err := m.ObserveURL(ctx, sub, "https://www.instagram.com/reel/AAA")
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	_, _, err = m.ObserveIdea(ctx, sub, "https://www.instagram.com/reel/AAA", "meal prep")
	require.NoError(t, err)

	// first write alone would have expired by now; the second kept it alive
	now = now.Add(25 * time.Minute)
	sc, err := m.Get(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, "meal prep", sc.LastIdea)

	now = now.Add(31 * time.Minute)
	sc, err = m.Get(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, model.SessionIdle, sc.State)
	assert.Empty(t, sc.LastIdea)
}

func TestGetSurvivesCorruptRecord(t *testing.T) {
	ctx := context.Background()
	m, eph := newManager(t)
	require.NoError(t, eph.Set(ctx, ephemeral.SessionKey(sub), "{not json", time.Minute))

	sc, err := m.Get(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, model.SessionIdle, sc.State)
}

func TestVariationsZeroIndexed(t *testing.T) {
	ctx := context.Background()
	eph := ephemeraltest.New()
	v := NewVariations(eph, 7*24*time.Hour, 5)

	url := "https://www.instagram.com/reel/AAA"
	for want := 0; want < 5; want++ {
		idx, advisory, err := v.GetAndIncrement(ctx, sub, url, "meal prep")
		require.NoError(t, err)
		assert.Equal(t, want, idx)
		assert.False(t, advisory)
	}

	// soft ceiling is advisory only
	idx, advisory, err := v.GetAndIncrement(ctx, sub, url, "meal prep")
	require.NoError(t, err)
	assert.Equal(t, 5, idx)
	assert.True(t, advisory)

	// a different idea is a separate family
	idx, _, err = v.GetAndIncrement(ctx, sub, url, "evening routine")
	require.NoError(t, err)
	assert.Zero(t, idx)

	// idea normalization folds case and whitespace into one family
	idx, _, err = v.GetAndIncrement(ctx, sub, url, "  MEAL PREP ")
	require.NoError(t, err)
	assert.Equal(t, 6, idx)
}

func TestVariationsPeekDoesNotAdvance(t *testing.T) {
	ctx := context.Background()
	eph := ephemeraltest.New()
	v := NewVariations(eph, 7*24*time.Hour, 5)
	url := "https://www.instagram.com/reel/AAA"

	_, found, err := v.Peek(ctx, sub, url, "meal prep")
	require.NoError(t, err)
	assert.False(t, found)

	idx, _, err := v.GetAndIncrement(ctx, sub, url, "meal prep")
	require.NoError(t, err)
	assert.Zero(t, idx)

	for i := 0; i < 3; i++ {
		idx, found, err = v.Peek(ctx, sub, url, "meal prep")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Zero(t, idx)
	}

	idx, _, err = v.GetAndIncrement(ctx, sub, url, "meal prep")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}
