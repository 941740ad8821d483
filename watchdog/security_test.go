package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/agentrt/browseragent/browser"
	"github.com/agentrt/browseragent/bus"
)

func TestSecurityWatchdogBlocksDeniedDomain(t *testing.T) {
	b := bus.New(nil)
	var reported bool
	_ = b.On("BrowserErrorEvent", "test-observer", func(ctx context.Context, ev *bus.Event) error {
		reported = true
		return nil
	})

	w := NewSecurityWatchdog(b, nil, nil, []string{"*.blocked.test"}, 100, 10)
	if err := w.Register(b); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ev := bus.NewEvent("NavigateToUrlEvent", browser.NavigateToUrlPayload{URL: "https://evil.blocked.test/x"}, "", time.Second)
	b.Dispatch(context.Background(), ev)

	if !reported {
		t.Fatal("expected BrowserErrorEvent for denied domain")
	}
}

func TestSecurityWatchdogAllowsUnlistedDomainWhenNoAllowlist(t *testing.T) {
	b := bus.New(nil)
	var reported bool
	_ = b.On("BrowserErrorEvent", "test-observer", func(ctx context.Context, ev *bus.Event) error {
		reported = true
		return nil
	})

	w := NewSecurityWatchdog(b, nil, nil, nil, 100, 10)
	if err := w.Register(b); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ev := bus.NewEvent("NavigateToUrlEvent", browser.NavigateToUrlPayload{URL: "https://example.com/x"}, "", time.Second)
	b.Dispatch(context.Background(), ev)

	if reported {
		t.Fatal("did not expect BrowserErrorEvent for allowed domain")
	}
}

func TestSecurityWatchdogEnforcesAllowlist(t *testing.T) {
	b := bus.New(nil)
	var reported bool
	_ = b.On("BrowserErrorEvent", "test-observer", func(ctx context.Context, ev *bus.Event) error {
		reported = true
		return nil
	})

	w := NewSecurityWatchdog(b, nil, []string{"*.allowed.test"}, nil, 100, 10)
	if err := w.Register(b); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ev := bus.NewEvent("NavigateToUrlEvent", browser.NavigateToUrlPayload{URL: "https://outside.test/x"}, "", time.Second)
	b.Dispatch(context.Background(), ev)

	if !reported {
		t.Fatal("expected BrowserErrorEvent for domain outside allowlist")
	}
}
