package watchdog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agentrt/browseragent/agenterr"
	"github.com/agentrt/browseragent/browser"
	"github.com/agentrt/browseragent/bus"
)

// defaultHealthCheckInterval and defaultReadyStateTimeout bound the Crash
// Watchdog's liveness probe: how often it runs, and how long it waits for
// one document.readyState evaluation before counting it as a failure.
const (
	defaultHealthCheckInterval = 10 * time.Second
	defaultReadyStateTimeout   = 5 * time.Second
)

// CrashWatchdog implements §4.4's full crash-detection contract: it
// translates a driver-reported crash into BrowserErrorEvent, tracks
// pending network requests by RequestID so a health timer can flag
// stale ones as BrowserError{NetworkTimeout}, and polls
// document.readyState on the same timer, escalating to
// TargetUnresponsive after unresponsiveThreshold consecutive failures —
// grounded on ScreensaverWatchdog's ticker+done-channel idle loop,
// applied here to liveness instead of idle-keepalive.
type CrashWatchdog struct {
	base

	networkTimeout        time.Duration
	healthCheckInterval   time.Duration
	unresponsiveThreshold int
	evalReadyState        func(ctx context.Context, js string) (string, error)

	mu               sync.Mutex
	pending          map[string]time.Time // RequestID -> request started at
	consecutiveFails int

	done chan struct{}
}

// NewCrashWatchdog takes the session's evaluate callback (e.g.
// Session.Evaluate) as the document.readyState probe, matching the
// callback-injection pattern NewScreensaverWatchdog uses for its ping.
func NewCrashWatchdog(b *bus.Bus, log *slog.Logger, networkTimeout time.Duration, unresponsiveThreshold int, evalReadyState func(ctx context.Context, js string) (string, error)) *CrashWatchdog {
	if networkTimeout <= 0 {
		networkTimeout = 30 * time.Second
	}
	if unresponsiveThreshold <= 0 {
		unresponsiveThreshold = 3
	}
	return &CrashWatchdog{
		base:                  newBase("crash", b, log),
		networkTimeout:        networkTimeout,
		healthCheckInterval:   defaultHealthCheckInterval,
		unresponsiveThreshold: unresponsiveThreshold,
		evalReadyState:        evalReadyState,
		pending:               make(map[string]time.Time),
		done:                  make(chan struct{}),
	}
}

func (w *CrashWatchdog) Register(b *bus.Bus) error {
	w.bus = b
	if err := b.On("TargetCrashedEvent", w.name, func(ctx context.Context, ev *bus.Event) error {
		payload, _ := ev.Payload.(browser.TargetCrashedPayload)
		w.reportError(ctx, agenterr.CodeTargetCrashed, "renderer target crashed: "+payload.TargetID, nil)
		return nil
	}); err != nil {
		return err
	}
	if err := b.On("NetworkRequestEvent", w.name, func(ctx context.Context, ev *bus.Event) error {
		payload, ok := ev.Payload.(browser.NetworkRequestPayload)
		if !ok {
			return nil
		}
		w.mu.Lock()
		w.pending[payload.RequestID] = payload.Timestamp
		w.mu.Unlock()
		return nil
	}); err != nil {
		return err
	}
	if err := b.On("NetworkResponseEvent", w.name, func(ctx context.Context, ev *bus.Event) error {
		payload, ok := ev.Payload.(browser.NetworkResponsePayload)
		if !ok {
			return nil
		}
		w.mu.Lock()
		delete(w.pending, payload.RequestID)
		w.mu.Unlock()
		return nil
	}); err != nil {
		return err
	}
	go w.healthLoop()
	return nil
}

func (w *CrashWatchdog) healthLoop() {
	ticker := time.NewTicker(w.healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.checkPendingRequests()
			w.checkReadyState()
		case <-w.done:
			return
		}
	}
}

// checkPendingRequests reports BrowserError{NetworkTimeout} for any
// request that has been pending longer than networkTimeout, then forgets
// it so it isn't reported again on the next tick.
func (w *CrashWatchdog) checkPendingRequests() {
	now := time.Now()
	w.mu.Lock()
	var stale []string
	for id, started := range w.pending {
		if now.Sub(started) > w.networkTimeout {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(w.pending, id)
	}
	w.mu.Unlock()

	for _, id := range stale {
		w.reportError(context.Background(), agenterr.CodeNetworkTimeout, "request stalled past timeout: "+id, nil)
	}
}

// checkReadyState evaluates document.readyState with a bounded timeout;
// unresponsiveThreshold consecutive failures escalate to
// TargetUnresponsive. A single success resets the counter.
func (w *CrashWatchdog) checkReadyState() {
	if w.evalReadyState == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultReadyStateTimeout)
	defer cancel()
	_, err := w.evalReadyState(ctx, "document.readyState")

	w.mu.Lock()
	if err != nil {
		w.consecutiveFails++
	} else {
		w.consecutiveFails = 0
	}
	fails := w.consecutiveFails
	w.mu.Unlock()

	if err != nil && fails >= w.unresponsiveThreshold {
		w.reportError(context.Background(), agenterr.CodeTargetUnresponsive,
			"document.readyState unreachable after consecutive failures", err)
	}
}

func (w *CrashWatchdog) Stop() {
	close(w.done)
}
