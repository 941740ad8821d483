package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/agentrt/browseragent/agenterr"
)

// Handler processes one event. ctx carries the event's timeout deadline.
// A handler must never panic; a returned error is recorded against the
// event's result set but does not stop sibling handlers from running.
type Handler func(ctx context.Context, ev *Event) error

type registration struct {
	handlerID string
	fn        Handler
}

// HandlerResult is one handler's outcome for a dispatched event.
type HandlerResult struct {
	HandlerID string
	Err       error
}

// Result is the aggregated outcome of dispatching a single event: the
// event itself, each handler's individual result in registration order,
// and the subset of results that errored, for convenient inspection.
type Result struct {
	Event          *Event
	HandlerResults []HandlerResult
	Errors         []error
}

// Bus is the in-process async event dispatcher. Handlers for a given
// event class run sequentially, in the order they were registered
// (Invariant: per-event-class handler ordering is deterministic and
// matches registration order — never parallelized, since the runtime's
// concurrency model is single-threaded-cooperative).
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]registration
	log      *slog.Logger
}

// New creates an empty Bus. log may be nil, in which case slog.Default()
// is used.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		handlers: make(map[string][]registration),
		log:      log,
	}
}

// On registers a handler for eventName under handlerID. handlerID must
// be unique per eventName; registering the same handlerID twice for the
// same event replaces the earlier registration. Before the first
// registration of a brand-new event class, On enforces that no existing
// class name is a substring of eventName and vice versa, so that no
// handler can accidentally subscribe to a half-matched class name.
func (b *Bus) On(eventName, handlerID string, fn Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[eventName]; !exists {
		for existing := range b.handlers {
			if strings.Contains(existing, eventName) || strings.Contains(eventName, existing) {
				return agenterr.New(agenterr.CodeEventHandler,
					fmt.Sprintf("event class %q collides with registered class %q", eventName, existing), nil)
			}
		}
	}

	regs := b.handlers[eventName]
	for i, r := range regs {
		if r.handlerID == handlerID {
			regs[i].fn = fn
			return nil
		}
	}
	b.handlers[eventName] = append(regs, registration{handlerID: handlerID, fn: fn})
	return nil
}

// Off removes a previously registered handler. Returns true if found.
func (b *Bus) Off(eventName, handlerID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	regs := b.handlers[eventName]
	for i, r := range regs {
		if r.handlerID == handlerID {
			b.handlers[eventName] = append(regs[:i], regs[i+1:]...)
			return true
		}
	}
	return false
}

// Dispatch runs every handler registered for ev.EventName sequentially,
// in registration order, all under one shared deadline of ev.EventTimeout
// (or the bus's default for that class if unset). Handler errors are
// collected into the returned Result, not propagated; a handler that has
// not started when the deadline passes is recorded with a
// CodeEventTimeout error.
func (b *Bus) Dispatch(parent context.Context, ev *Event) *Result {
	b.mu.RLock()
	regs := make([]registration, len(b.handlers[ev.EventName]))
	copy(regs, b.handlers[ev.EventName])
	b.mu.RUnlock()

	result := &Result{Event: ev, HandlerResults: make([]HandlerResult, 0, len(regs))}

	timeout := ev.EventTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout(ev.EventName, 30*time.Second)
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	for _, r := range regs {
		err := b.runOne(ctx, r, ev)
		result.HandlerResults = append(result.HandlerResults, HandlerResult{HandlerID: r.handlerID, Err: err})
		if err != nil {
			result.Errors = append(result.Errors, err)
			b.log.Error("event handler failed", "event", ev.EventName, "handler", r.handlerID, "err", err)
		}
	}
	return result
}

// runOne invokes a single handler, converting a context deadline into a
// CodeEventTimeout error rather than letting it surface as a bare
// context.DeadlineExceeded.
func (b *Bus) runOne(ctx context.Context, r registration, ev *Event) error {
	if err := ctx.Err(); err != nil {
		return agenterr.New(agenterr.CodeEventTimeout,
			fmt.Sprintf("event %q timed out before handler %q ran", ev.EventName, r.handlerID), err)
	}
	if err := r.fn(ctx, ev); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return agenterr.New(agenterr.CodeEventTimeout,
			fmt.Sprintf("event %q timed out during handler %q", ev.EventName, r.handlerID), err)
	}
	return nil
}

// DispatchOrThrow behaves like Dispatch but, if any handler errored,
// aggregates every handler error (in registration order) into a single
// CodeEventHandler error rather than surfacing only the first one — per
// §9's open-question resolution, dispatch_or_throw standardizes on
// aggregation over first-error.
func (b *Bus) DispatchOrThrow(parent context.Context, ev *Event) (*Result, error) {
	result := b.Dispatch(parent, ev)
	if len(result.Errors) > 0 {
		return result, newEventHandlerError(ev.EventName, result.Errors)
	}
	return result, nil
}

// newEventHandlerError builds the single aggregated EventHandlerError
// §4.1 describes, wrapping the first failure while naming how many
// handlers failed and listing each one's message.
func newEventHandlerError(eventName string, errs []error) error {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return agenterr.New(agenterr.CodeEventHandler,
		fmt.Sprintf("event %q: %d handler(s) failed: %s", eventName, len(errs), strings.Join(msgs, "; ")),
		errs[0])
}

// HandlerCount reports how many handlers are registered for eventName,
// used by tests asserting dispatch produced exactly that many results.
func (b *Bus) HandlerCount(eventName string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventName])
}
