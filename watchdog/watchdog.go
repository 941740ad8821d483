// Package watchdog implements the bus subscribers that enforce session
// invariants (C4): each watchdog has a single responsibility, observes
// events passively, and never re-throws into the bus — a failure is
// always translated into a BrowserErrorEvent dispatch instead. The one
// handler error is the Security Watchdog's veto: it also returns an error
// for a blocked NavigateToUrlEvent so Session.NavigateTo stops.
package watchdog

import (
	"context"
	"log/slog"

	"github.com/agentrt/browseragent/bus"
)

// BrowserErrorPayload is the payload carried by BrowserErrorEvent, the
// single channel every watchdog uses to surface a problem.
type BrowserErrorPayload struct {
	Code    string
	Message string
	Source  string // watchdog name that raised it
	Err     error
}

// Watchdog subscribes itself to the bus on Register and tears itself
// down on Stop. Implementations must be safe to Register exactly once.
type Watchdog interface {
	Name() string
	Register(b *bus.Bus) error
	Stop()
}

// base gives concrete watchdogs a shared way to report a failure without
// duplicating the BrowserErrorEvent-dispatch boilerplate in every file.
type base struct {
	name string
	bus  *bus.Bus
	log  *slog.Logger
}

func newBase(name string, b *bus.Bus, log *slog.Logger) base {
	if log == nil {
		log = slog.Default()
	}
	return base{name: name, bus: b, log: log}
}

func (w *base) Name() string { return w.name }

// reportError dispatches a BrowserErrorEvent describing this watchdog's
// failure. It never returns an error itself — per the single-responsibility
// contract, a watchdog's own malfunction must not cascade into the bus
// as a handler error.
func (w *base) reportError(ctx context.Context, code, message string, err error) {
	ev := bus.NewEvent("BrowserErrorEvent", BrowserErrorPayload{
		Code: code, Message: message, Source: w.name, Err: err,
	}, "", 0)
	w.bus.Dispatch(ctx, ev)
	w.log.Warn("watchdog reported error", "watchdog", w.name, "code", code, "message", message)
}
