// Package ephemeraltest provides an in-memory ephemeral.Store used by unit
// tests across packages.
package ephemeraltest

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/reelscript/reelscript/internal/ephemeral"
)

type entry struct {
	value     string
	expiresAt time.Time // zero = no expiry
}

// Memory is a map-backed Store. Fail, when set, makes every operation
// return it, which tests use to exercise fail-open/fail-closed paths.
type Memory struct {
	mu   sync.Mutex
	data map[string]entry
	now  func() time.Time

	Fail error
}

func New() *Memory {
	return &Memory{data: make(map[string]entry), now: time.Now}
}

// SetClock overrides the time source for TTL tests.
func (m *Memory) SetClock(now func() time.Time) { m.now = now }

func (m *Memory) live(k string) (entry, bool) {
	e, ok := m.data[k]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.data, k)
		return entry{}, false
	}
	return e, true
}

func (m *Memory) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if m.Fail != nil {
		return 0, m.Fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	var cur int64
	if ok {
		cur, _ = strconv.ParseInt(e.value, 10, 64)
	}
	cur++
	next := entry{value: strconv.FormatInt(cur, 10), expiresAt: e.expiresAt}
	if !ok && ttl > 0 {
		next.expiresAt = m.now().Add(ttl)
	}
	m.data[key] = next
	return cur, nil
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	if m.Fail != nil {
		return "", false, m.Fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	if m.Fail != nil {
		return 0, m.Fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return 0, ephemeral.ErrNoKey
	}
	if e.expiresAt.IsZero() {
		return 0, nil
	}
	return e.expiresAt.Sub(m.now()), nil
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if m.Fail != nil {
		return m.Fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.data[key] = e
	return nil
}

func (m *Memory) Del(ctx context.Context, key string) error {
	if m.Fail != nil {
		return m.Fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Keys(ctx context.Context, prefix string) ([]string, error) {
	if m.Fail != nil {
		return nil, m.Fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			if _, ok := m.live(k); ok {
				out = append(out, k)
			}
		}
	}
	return out, nil
}

func (m *Memory) HealthPing(ctx context.Context) error { return m.Fail }

func (m *Memory) Close() error { return nil }

var _ ephemeral.Store = (*Memory)(nil)
