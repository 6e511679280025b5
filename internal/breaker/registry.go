package breaker

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/reelscript/reelscript/internal/ephemeral"
	"github.com/reelscript/reelscript/internal/events"
)

// Registry hands out one breaker per service name, created lazily with
// shared settings.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	settings Settings
	mirror   ephemeral.Store
	bus      *events.Bus
	log      zerolog.Logger
}

func NewRegistry(settings Settings, mirror ephemeral.Store, bus *events.Bus, log zerolog.Logger) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		settings: settings,
		mirror:   mirror,
		bus:      bus,
		log:      log,
	}
}

// Get returns the breaker for service, creating it on first use.
func (r *Registry) Get(service string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[service]; ok {
		return b
	}
	b := New(service, r.settings, r.mirror, r.bus, r.log)
	r.breakers[service] = b
	return b
}

// States snapshots every registered breaker's state, for telemetry.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}
