package watchdog

import (
	"fmt"

	"github.com/agentrt/browseragent/bus"
)

// Registry owns the set of active watchdogs for one browser session and
// registers them against the bus as a unit on session start.
type Registry struct {
	watchdogs []Watchdog
}

// NewRegistry builds a Registry from the given watchdogs, in the order
// they should be registered (and, symmetrically, stopped in reverse).
func NewRegistry(ws ...Watchdog) *Registry {
	return &Registry{watchdogs: ws}
}

// RegisterAll registers every watchdog against b, stopping at the first
// registration error (event-class collisions are the only expected
// failure mode, and indicate a programming error rather than a runtime
// condition).
func (r *Registry) RegisterAll(b *bus.Bus) error {
	for _, w := range r.watchdogs {
		if err := w.Register(b); err != nil {
			return fmt.Errorf("watchdog: register %s: %w", w.Name(), err)
		}
	}
	return nil
}

// StopAll stops every watchdog in reverse registration order.
func (r *Registry) StopAll() {
	for i := len(r.watchdogs) - 1; i >= 0; i-- {
		r.watchdogs[i].Stop()
	}
}
