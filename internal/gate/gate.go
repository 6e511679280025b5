// Package gate chains the access controls in front of ingress: beta
// admission, block check, then the per-subscriber quota. Any failure
// short-circuits with a typed error; waitlisting is a result, not an error.
package gate

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelscript/reelscript/internal/ephemeral"
	"github.com/reelscript/reelscript/internal/model"
	"github.com/reelscript/reelscript/internal/store"
)

// Decision is the successful outcome of the gate chain.
type Decision struct {
	User             *model.User
	Waitlisted       bool
	WaitlistPosition int
	Promoted         bool

	// Quota headers. Zero when the request was waitlisted (no quota spent).
	QuotaRemaining int
	QuotaReset     time.Duration
}

type Gate struct {
	users    store.Users
	eph      ephemeral.Store
	capacity int
	quota    int
	window   time.Duration
	log      zerolog.Logger
}

func New(users store.Users, eph ephemeral.Store, capacity, quota int, window time.Duration, log zerolog.Logger) *Gate {
	return &Gate{
		users:    users,
		eph:      eph,
		capacity: capacity,
		quota:    quota,
		window:   window,
		log:      log,
	}
}

// Check runs the sub-gates in order. It returns a Decision on success or a
// typed error: AccessDeniedError (403), QuotaExceededError (429), or
// UnavailableError (503, quota store unreachable).
func (g *Gate) Check(ctx context.Context, subscriberID string) (*Decision, error) {
	res, err := g.users.Admit(ctx, subscriberID, g.capacity)
	if err != nil {
		return nil, err
	}
	switch res.User.Status {
	case model.UserBlocked:
		return nil, &model.AccessDeniedError{Reason: "subscriber is blocked"}
	case model.UserWaitlist:
		return &Decision{
			User:             res.User,
			Waitlisted:       true,
			WaitlistPosition: res.WaitlistPosition,
		}, nil
	}
	if res.Promoted {
		g.log.Info().Str("subscriber", subscriberID).Msg("promoted from waitlist")
	}

	// Short-term ephemeral block, orthogonal to the durable status. A read
	// failure here is tolerated; the durable status remains authoritative.
	if _, blocked, err := g.eph.Get(ctx, ephemeral.BlockKey(subscriberID)); err == nil && blocked {
		return nil, &model.AccessDeniedError{Reason: "subscriber is temporarily blocked"}
	}

	// Quota is an abuse control and fails closed.
	count, err := g.eph.IncrWithTTL(ctx, ephemeral.RateLimitKey(subscriberID), g.window)
	if err != nil {
		return nil, &model.UnavailableError{Cause: err}
	}
	reset, err := g.eph.GetTTL(ctx, ephemeral.RateLimitKey(subscriberID))
	if err != nil {
		reset = g.window
	}
	if count > int64(g.quota) {
		return nil, &model.QuotaExceededError{RetryAfter: reset}
	}

	remaining := g.quota - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return &Decision{
		User:           res.User,
		Promoted:       res.Promoted,
		QuotaRemaining: remaining,
		QuotaReset:     reset,
	}, nil
}

// Block sets the short-term ephemeral block flag.
func (g *Gate) Block(ctx context.Context, subscriberID string, ttl time.Duration) error {
	return g.eph.Set(ctx, ephemeral.BlockKey(subscriberID), "1", ttl)
}

// Unblock clears the ephemeral block flag.
func (g *Gate) Unblock(ctx context.Context, subscriberID string) error {
	return g.eph.Del(ctx, ephemeral.BlockKey(subscriberID))
}
