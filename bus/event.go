// Package bus implements the in-process, async event bus that is the
// runtime's single coordination backbone (C1): watchdogs, the browser
// session, and the agent step loop all communicate exclusively by
// dispatching and handling events, never by direct method calls across
// component boundaries.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// Event is a single occurrence dispatched on the bus. EventID is a UUIDv7
// so IDs sort chronologically; EventParentID correlates an event raised
// while handling another (e.g. a watchdog's BrowserErrorEvent raised
// while handling a NavigateToUrlEvent).
type Event struct {
	EventID        string
	EventName      string
	EventParentID  string
	EventCreatedAt time.Time
	EventTimeout   time.Duration
	EventMetadata  map[string]any

	// Payload is the event-specific data. Handlers type-assert it against
	// the concrete type registered for EventName.
	Payload any
}

// NewEvent constructs an Event with a fresh UUIDv7 ID and the current
// timestamp. parentID may be empty for root events.
func NewEvent(name string, payload any, parentID string, timeout time.Duration) *Event {
	id, err := uuid.NewV7()
	idStr := id.String()
	if err != nil {
		// uuid.NewV7 only fails on an exhausted entropy source; fall back
		// to a random v4 rather than panic mid-dispatch.
		idStr = uuid.NewString()
	}
	return &Event{
		EventID:        idStr,
		EventName:      name,
		EventParentID:  parentID,
		EventCreatedAt: time.Now(),
		EventTimeout:   timeout,
		EventMetadata:  make(map[string]any),
		Payload:        payload,
	}
}

// defaultTimeouts gives each well-known event class a default deadline
// (§4.1 of the design). config.Load reads TIMEOUT_<EventName> environment
// variables into config.EventTimeouts, but nothing copies those values
// into this table, so DefaultTimeout always returns the built-in value.
var defaultTimeouts = map[string]time.Duration{
	"NavigateToUrlEvent":    15 * time.Second,
	"ClickElementEvent":     10 * time.Second,
	"TypeTextEvent":         60 * time.Second,
	"SaveStorageStateEvent": 45 * time.Second,
	"LoadStorageStateEvent": 45 * time.Second,
	"ScrollEvent":           10 * time.Second,
	"TabCreatedEvent":       10 * time.Second,
	"TabClosedEvent":        10 * time.Second,
	"BrowserStateRequestEvent": 30 * time.Second,
	"BrowserStartEvent":    30 * time.Second,
	"BrowserStopEvent":     15 * time.Second,
	"BrowserErrorEvent":    5 * time.Second,
	"FileDownloadedEvent":  10 * time.Second,
	"DialogOpenedEvent":    5 * time.Second,
	"ScreenshotEvent":      10 * time.Second,
}

// DefaultTimeout returns the built-in default timeout for a named event
// class, or fallback if the class is unknown.
func DefaultTimeout(name string, fallback time.Duration) time.Duration {
	if d, ok := defaultTimeouts[name]; ok {
		return d
	}
	return fallback
}
