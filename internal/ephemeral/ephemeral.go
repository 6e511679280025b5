// Package ephemeral exposes the KV/counter primitives used for sessions,
// rate limits, variation counters and the distributed breaker mirror.
// Implementations live under internal/ephemeral/<driver>/.
package ephemeral

import (
	"context"
	"errors"
	"time"
)

// ErrNoKey is returned by GetTTL when the key does not exist.
var ErrNoKey = errors.New("ephemeral: no such key")

// Store is the ephemeral KV contract. All operations are single round
// trips; callers tolerate individual failures except where a gate is
// documented to fail closed.
type Store interface {
	// IncrWithTTL atomically increments the integer at key and returns the
	// post-increment value. The TTL is applied only when the increment
	// created the key, so windows slide from first use.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// GetTTL returns the remaining lifetime of key, ErrNoKey if absent.
	GetTTL(ctx context.Context, key string) (time.Duration, error)

	// Set stores value under key with the given TTL (0 = no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Del removes key; deleting an absent key is not an error.
	Del(ctx context.Context, key string) error

	// Keys enumerates keys under prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// HealthPing reports store reachability.
	HealthPing(ctx context.Context) error

	Close() error
}

// Key builders. The layout is part of the operational contract; dashboards
// and runbooks grep these prefixes.

func SessionKey(subscriberID string) string { return "session:" + subscriberID }

func VariationKey(subscriberID, canonicalURL, normIdea string) string {
	return "variation:" + subscriberID + ":" + canonicalURL + ":" + normIdea
}

func RateLimitKey(subscriberID string) string { return "user_rl:" + subscriberID }

func BlockKey(subscriberID string) string { return "blocked:" + subscriberID }

func CircuitKey(service string) string { return "circuit:" + service + ":state" }
