package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/agentrt/browseragent/agenterr"
	"github.com/agentrt/browseragent/browser"
	"github.com/agentrt/browseragent/bus"
)

// SecurityWatchdog enforces a domain allowlist/denylist and, as a
// supplement beyond the bare allow/deny check, paces navigations to any
// single domain with a token bucket — grounded on the teacher's
// dispatcher staged-escalation approach to not hammering one origin.
type SecurityWatchdog struct {
	base
	allow []string // empty means "no allowlist restriction"
	deny  []string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func NewSecurityWatchdog(b *bus.Bus, log *slog.Logger, allow, deny []string, rps float64, burst int) *SecurityWatchdog {
	return &SecurityWatchdog{
		base:     newBase("security", b, log),
		allow:    allow,
		deny:     deny,
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (w *SecurityWatchdog) Register(b *bus.Bus) error {
	w.bus = b
	return b.On("NavigateToUrlEvent", w.name, func(ctx context.Context, ev *bus.Event) error {
		payload, ok := ev.Payload.(browser.NavigateToUrlPayload)
		if !ok {
			return nil
		}
		host, err := hostOf(payload.URL)
		if err != nil {
			w.reportError(ctx, agenterr.CodeNavigationBlocked, "unparsable url: "+payload.URL, err)
			return agenterr.New(agenterr.CodeNavigationBlocked, "unparsable url: "+payload.URL, err)
		}
		if !w.isAllowed(host) {
			msg := fmt.Sprintf("domain %q is not allowed", host)
			w.reportError(ctx, agenterr.CodeNavigationBlocked, msg, nil)
			return agenterr.New(agenterr.CodeNavigationBlocked, msg, nil)
		}
		if !w.limiterFor(host).Allow() {
			msg := fmt.Sprintf("navigation rate exceeded for %q", host)
			w.reportError(ctx, agenterr.CodeNavigationBlocked, msg, nil)
			return agenterr.New(agenterr.CodeNavigationBlocked, msg, nil)
		}
		return nil
	})
}

func (w *SecurityWatchdog) isAllowed(host string) bool {
	for _, d := range w.deny {
		if globMatch(d, host) {
			return false
		}
	}
	if len(w.allow) == 0 {
		return true
	}
	for _, a := range w.allow {
		if globMatch(a, host) {
			return true
		}
	}
	return false
}

func (w *SecurityWatchdog) limiterFor(host string) *rate.Limiter {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.limiters[host]
	if !ok {
		l = rate.NewLimiter(w.rps, w.burst)
		w.limiters[host] = l
	}
	return l
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return strings.ToLower(u.Hostname()), nil
}

func globMatch(glob, host string) bool {
	glob = strings.ToLower(glob)
	if strings.HasPrefix(glob, "*.") {
		return host == glob[2:] || strings.HasSuffix(host, glob[1:])
	}
	ok, err := path.Match(glob, host)
	return err == nil && ok
}

func (w *SecurityWatchdog) Stop() {}
