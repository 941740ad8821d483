package watchdog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agentrt/browseragent/agenterr"
	"github.com/agentrt/browseragent/bus"
)

// idleCheckInterval is both how often the watchdog wakes and how long
// without an AgentStepStartedEvent counts as idle; an idle tab is pinged
// to keep it from being treated as idle by the OS/compositor during long
// LLM-thinking pauses between steps.
const idleCheckInterval = 20 * time.Second

// ScreensaverWatchdog pings an idle tab through its ping callback on a
// timer so a long-running headless session doesn't
// get suspended by the host OS's power management during an extended
// Waiting-LLM state.
type ScreensaverWatchdog struct {
	base
	mu      sync.Mutex
	lastHit time.Time
	done    chan struct{}
	ping    func(ctx context.Context) error
}

// NewScreensaverWatchdog takes a ping func supplied by the browser
// session (e.g. Session.Ping) so this package doesn't need to depend on
// the concrete driver.
func NewScreensaverWatchdog(b *bus.Bus, log *slog.Logger, ping func(ctx context.Context) error) *ScreensaverWatchdog {
	return &ScreensaverWatchdog{
		base: newBase("screensaver", b, log),
		ping: ping,
		done: make(chan struct{}),
	}
}

func (w *ScreensaverWatchdog) Register(b *bus.Bus) error {
	w.bus = b
	if err := b.On("AgentStepStartedEvent", w.name, func(ctx context.Context, ev *bus.Event) error {
		w.mu.Lock()
		w.lastHit = time.Now()
		w.mu.Unlock()
		return nil
	}); err != nil {
		return err
	}
	go w.loop()
	return nil
}

func (w *ScreensaverWatchdog) loop() {
	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.mu.Lock()
			idle := time.Since(w.lastHit) >= idleCheckInterval
			w.mu.Unlock()
			if idle && w.ping != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := w.ping(ctx); err != nil {
					w.reportError(ctx, agenterr.CodeTargetUnresponsive, "idle-keepalive ping failed", err)
				}
				cancel()
			}
		case <-w.done:
			return
		}
	}
}

func (w *ScreensaverWatchdog) Stop() {
	close(w.done)
}
