package watchdog

import (
	"context"
	"log/slog"

	"github.com/agentrt/browseragent/agenterr"
	"github.com/agentrt/browseragent/browser"
	"github.com/agentrt/browseragent/bus"
)

// CDPSessionWatchdog detects a dropped CDP session for the active tab
// and reports it so the agent loop can decide to recreate the session
// rather than silently hang on the next action.
type CDPSessionWatchdog struct {
	base
}

func NewCDPSessionWatchdog(b *bus.Bus, log *slog.Logger) *CDPSessionWatchdog {
	return &CDPSessionWatchdog{base: newBase("cdp_session", b, log)}
}

func (w *CDPSessionWatchdog) Register(b *bus.Bus) error {
	w.bus = b
	return b.On("TargetDetachedEvent", w.name, func(ctx context.Context, ev *bus.Event) error {
		payload, ok := ev.Payload.(browser.TargetDetachedPayload)
		if !ok {
			return nil
		}
		w.reportError(ctx, agenterr.CodeTargetUnresponsive, "cdp session detached: "+payload.Reason, nil)
		return nil
	})
}

func (w *CDPSessionWatchdog) Stop() {}
