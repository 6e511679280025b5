package gate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelscript/reelscript/internal/ephemeral/ephemeraltest"
	"github.com/reelscript/reelscript/internal/model"
	"github.com/reelscript/reelscript/internal/store/storetest"
)

func newGate(t *testing.T, capacity, quota int) (*Gate, *storetest.Memory, *ephemeraltest.Memory) {
	t.Helper()
	st := storetest.New()
	eph := ephemeraltest.New()
	g := New(st.Users(), eph, capacity, quota, time.Hour, zerolog.Nop())
	return g, st, eph
}

func TestCheckAdmitsNewSubscriber(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newGate(t, 10, 10)

	d, err := g.Check(ctx, "100")
	require.NoError(t, err)
	assert.False(t, d.Waitlisted)
	require.NotNil(t, d.User.RegistrationNumber)
	assert.Equal(t, int64(1), *d.User.RegistrationNumber)
	assert.Equal(t, 9, d.QuotaRemaining)
}

func TestCheckWaitlistsAtCapacity(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newGate(t, 2, 10)

	for i := 0; i < 2; i++ {
		_, err := g.Check(ctx, fmt.Sprintf("10%d", i))
		require.NoError(t, err)
	}

	d, err := g.Check(ctx, "200")
	require.NoError(t, err)
	assert.True(t, d.Waitlisted)
	assert.Equal(t, 1, d.WaitlistPosition)

	d, err = g.Check(ctx, "201")
	require.NoError(t, err)
	assert.True(t, d.Waitlisted)
	assert.Equal(t, 2, d.WaitlistPosition)
}

func TestCheckDeniesBlockedUser(t *testing.T) {
	ctx := context.Background()
	g, st, _ := newGate(t, 10, 10)

	st.UsersByID["300"] = &model.User{SubscriberID: "300", Status: model.UserBlocked}
	_, err := g.Check(ctx, "300")
	var denied *model.AccessDeniedError
	require.ErrorAs(t, err, &denied)
}

func TestCheckEphemeralBlock(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newGate(t, 10, 10)

	_, err := g.Check(ctx, "400")
	require.NoError(t, err)

	require.NoError(t, g.Block(ctx, "400", 24*time.Hour))
	_, err = g.Check(ctx, "400")
	var denied *model.AccessDeniedError
	require.ErrorAs(t, err, &denied)

	require.NoError(t, g.Unblock(ctx, "400"))
	_, err = g.Check(ctx, "400")
	require.NoError(t, err)
}

func TestCheckQuotaExceeded(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newGate(t, 10, 3)

	for i := 0; i < 3; i++ {
		d, err := g.Check(ctx, "500")
		require.NoError(t, err)
		assert.Equal(t, 2-i, d.QuotaRemaining)
	}

	_, err := g.Check(ctx, "500")
	var quota *model.QuotaExceededError
	require.ErrorAs(t, err, &quota)
	assert.Greater(t, quota.RetryAfter, time.Duration(0))
}

func TestCheckQuotaWindowSlides(t *testing.T) {
	ctx := context.Background()
	st := storetest.New()
	eph := ephemeraltest.New()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	eph.SetClock(func() time.Time { return now })
	g := New(st.Users(), eph, 10, 2, time.Hour, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_, err := g.Check(ctx, "600")
		require.NoError(t, err)
	}
	_, err := g.Check(ctx, "600")
	var quota *model.QuotaExceededError
	require.ErrorAs(t, err, &quota)

	now = now.Add(61 * time.Minute)
	_, err = g.Check(ctx, "600")
	require.NoError(t, err)
}

func TestCheckQuotaFailsClosed(t *testing.T) {
	ctx := context.Background()
	g, _, eph := newGate(t, 10, 10)

	eph.Fail = errors.New("redis down")
	_, err := g.Check(ctx, "700")
	var unavailable *model.UnavailableError
	require.ErrorAs(t, err, &unavailable)
}
