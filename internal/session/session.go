// Package session owns the per-subscriber conversational state and the
// variation counters. It is the only writer to both.
package session

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelscript/reelscript/internal/ephemeral"
	"github.com/reelscript/reelscript/internal/model"
	"github.com/reelscript/reelscript/internal/reelhash"
)

// Manager loads and mutates SessionContext records. Every write refreshes
// the sliding TTL.
type Manager struct {
	eph ephemeral.Store
	ttl time.Duration
	log zerolog.Logger
	now func() time.Time
}

func NewManager(eph ephemeral.Store, ttl time.Duration, log zerolog.Logger) *Manager {
	return &Manager{eph: eph, ttl: ttl, log: log, now: time.Now}
}

// Get loads the subscriber's session, constructing a fresh idle one when
// absent or unreadable.
func (m *Manager) Get(ctx context.Context, subscriberID string) (*model.SessionContext, error) {
	raw, ok, err := m.eph.Get(ctx, ephemeral.SessionKey(subscriberID))
	if err != nil {
		return nil, err
	}
	if ok {
		var sc model.SessionContext
		if err := json.Unmarshal([]byte(raw), &sc); err == nil {
			return &sc, nil
		}
		m.log.Warn().Str("subscriber", subscriberID).Msg("dropping unreadable session record")
	}
	return &model.SessionContext{
		SubscriberID: subscriberID,
		State:        model.SessionIdle,
		LastActivity: m.now(),
	}, nil
}

// ObserveURL records a new video URL: state moves to awaiting_idea and the
// in-session variation count resets.
func (m *Manager) ObserveURL(ctx context.Context, subscriberID, canonicalURL string) (*model.SessionContext, error) {
	sc, err := m.Get(ctx, subscriberID)
	if err != nil {
		return nil, err
	}
	sc.LastURL = canonicalURL
	sc.State = model.SessionAwaitingIdea
	sc.VariationCount = 0
	return sc, m.save(ctx, sc)
}

// ObserveIdea records the subscriber's idea and the URL it targets. A
// repeated idea for the same URL stays in the same variation family; a new
// idea or a new URL starts a new one. The second return value reports
// whether this is a repeat.
func (m *Manager) ObserveIdea(ctx context.Context, subscriberID, canonicalURL, idea string) (*model.SessionContext, bool, error) {
	sc, err := m.Get(ctx, subscriberID)
	if err != nil {
		return nil, false, err
	}
	repeat := sc.LastIdea != "" && sameIdea(sc.LastIdea, idea) &&
		(sc.LastURL == "" || sc.LastURL == canonicalURL)
	if !repeat {
		sc.VariationCount = 0
	}
	sc.LastURL = canonicalURL
	sc.LastIdea = idea
	return sc, repeat, m.save(ctx, sc)
}

// ObserveResult records a finished generation against the session.
func (m *Manager) ObserveResult(ctx context.Context, subscriberID, requestHash, scriptID string) (*model.SessionContext, error) {
	sc, err := m.Get(ctx, subscriberID)
	if err != nil {
		return nil, err
	}
	sc.LastRequestHash = requestHash
	sc.LastScriptID = scriptID
	sc.State = model.SessionAwaitingConfirm
	sc.ActiveJobID = ""
	sc.VariationCount++
	return sc, m.save(ctx, sc)
}

// MarkProcessing records the job the subscriber is waiting on.
func (m *Manager) MarkProcessing(ctx context.Context, subscriberID, jobID string) (*model.SessionContext, error) {
	sc, err := m.Get(ctx, subscriberID)
	if err != nil {
		return nil, err
	}
	sc.State = model.SessionProcessing
	sc.ActiveJobID = jobID
	return sc, m.save(ctx, sc)
}

// Clear drops the session record.
func (m *Manager) Clear(ctx context.Context, subscriberID string) error {
	return m.eph.Del(ctx, ephemeral.SessionKey(subscriberID))
}

func (m *Manager) save(ctx context.Context, sc *model.SessionContext) error {
	sc.LastActivity = m.now()
	raw, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	return m.eph.Set(ctx, ephemeral.SessionKey(sc.SubscriberID), string(raw), m.ttl)
}

func sameIdea(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Variations hands out 0-indexed variation numbers per
// (subscriber, url, idea) family. Counters live independently of the
// session record and expire after their own TTL.
type Variations struct {
	eph       ephemeral.Store
	ttl       time.Duration
	softLimit int
}

func NewVariations(eph ephemeral.Store, ttl time.Duration, softLimit int) *Variations {
	return &Variations{eph: eph, ttl: ttl, softLimit: softLimit}
}

// GetAndIncrement atomically bumps the family counter and returns the
// 0-indexed variation number plus a soft-ceiling advisory. The advisory
// never blocks the request.
func (v *Variations) GetAndIncrement(ctx context.Context, subscriberID, canonicalURL, idea string) (int, bool, error) {
	key := ephemeral.VariationKey(subscriberID, canonicalURL, reelhash.NormalizeIdea(idea))
	n, err := v.eph.IncrWithTTL(ctx, key, v.ttl)
	if err != nil {
		return 0, false, err
	}
	index := int(n - 1)
	return index, v.softLimit > 0 && index >= v.softLimit, nil
}

// Peek reports the last consumed variation index without advancing the
// counter. ok is false when the family has no counter yet, or it expired.
func (v *Variations) Peek(ctx context.Context, subscriberID, canonicalURL, idea string) (int, bool, error) {
	key := ephemeral.VariationKey(subscriberID, canonicalURL, reelhash.NormalizeIdea(idea))
	raw, found, err := v.eph.Get(ctx, key)
	if err != nil || !found {
		return 0, false, err
	}
	n, perr := strconv.ParseInt(raw, 10, 64)
	if perr != nil || n < 1 {
		return 0, false, nil
	}
	return int(n - 1), true, nil
}
