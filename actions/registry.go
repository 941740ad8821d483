package actions

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/agentrt/browseragent/agenterr"
)

// Registry holds the frozen set of action declarations. Registration
// happens once at startup; Freeze rejects further registrations so the
// agent loop can rely on a stable action set for the lifetime of a run.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]*Declaration
	frozen  bool
}

// NewRegistry creates an empty, unfrozen Registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]*Declaration)}
}

// Register adds a declaration. Returns an error if the registry is
// frozen or the name is already taken.
func (r *Registry) Register(d *Declaration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("actions: registry is frozen, cannot register %q", d.Name)
	}
	if _, exists := r.actions[d.Name]; exists {
		return fmt.Errorf("actions: action %q already registered", d.Name)
	}
	r.actions[d.Name] = d
	return nil
}

// Freeze stops further registration. cmd/browseragent calls this once,
// after registering the default actions and before the run starts.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup returns the declaration for name, or nil if unknown.
func (r *Registry) Lookup(name string) *Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.actions[name]
}

// Names returns every registered action name, for the message builder's
// "allowed action names" listing.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.actions))
	for n := range r.actions {
		out = append(out, n)
	}
	return out
}

// All returns every registered declaration, sorted by name, for the
// message builder's system-prompt rendering of the full action surface
// (name, description, parameter schema) rather than just names.
func (r *Registry) All() []*Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Declaration, 0, len(r.actions))
	for _, d := range r.actions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// validateParams checks raw against d.Params: required fields present,
// and no unknown fields (extra fields are rejected, matching the
// contract that unknown/extra parameters fail validation).
func validateParams(d *Declaration, raw map[string]any) error {
	known := make(map[string]bool, len(d.Params))
	for _, f := range d.Params {
		known[f.Name] = true
		if f.Required {
			if _, ok := raw[f.Name]; !ok {
				return agenterr.New(agenterr.CodeInvalidParams,
					fmt.Sprintf("%s: missing required parameter %q", d.Name, f.Name), nil)
			}
		}
	}
	for k := range raw {
		if !known[k] {
			return agenterr.New(agenterr.CodeInvalidParams,
				fmt.Sprintf("%s: unknown parameter %q", d.Name, k), nil)
		}
	}
	return nil
}

// domainAllowed matches the session's active tab URL against the
// declaration's AllowedDomains (empty means unrestricted).
func domainAllowed(allowed []string, currentURL string) bool {
	if len(allowed) == 0 {
		return true
	}
	u, err := url.Parse(currentURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, pattern := range allowed {
		if matchDomain(pattern, host) {
			return true
		}
	}
	return false
}

func matchDomain(pattern, host string) bool {
	pattern = strings.ToLower(pattern)
	if strings.HasPrefix(pattern, "*.") {
		return host == pattern[2:] || strings.HasSuffix(host, pattern[1:])
	}
	return pattern == host
}
