// Package telemetry implements the agent_event capture sink (C8): one
// event per run, redacted and handed to a pluggable Sink. The default
// sink is a no-op; MemorySink keeps a bounded ring buffer an optional
// DebugServer can expose for live introspection.
package telemetry

import (
	"sync"
	"time"

	"github.com/agentrt/browseragent/redact"
)

// JudgeVerdict is the optional secondary-judge-LLM outcome attached to a
// run, when a judge model scored the final result.
type JudgeVerdict struct {
	Ran     bool
	Passed  bool
	Comment string
}

// Event is the single agent_event emitted per run (§4.8). Every string
// field is expected to have already passed through Redact before
// reaching Capture.
type Event struct {
	RunID      string
	Model      string
	Provider   string
	Steps      int
	Tokens     int
	Success    bool
	Error      string
	Judge      JudgeVerdict
	OccurredAt time.Time
}

// Redact scans every string field of ev for sensitive-data values and
// replaces them with their placeholders, using m (which may be nil, in
// which case ev is returned unchanged). Callers should run this before
// Capture so no sink ever observes a real secret.
func Redact(ev Event, m *redact.Map) Event {
	if m == nil {
		return ev
	}
	ev.RunID = m.InboundAny(ev.RunID)
	ev.Model = m.InboundAny(ev.Model)
	ev.Provider = m.InboundAny(ev.Provider)
	ev.Error = m.InboundAny(ev.Error)
	ev.Judge.Comment = m.InboundAny(ev.Judge.Comment)
	return ev
}

// Sink receives captured events and can be asked to flush any buffered
// state (e.g. before process exit).
type Sink interface {
	Capture(ev Event) error
	Flush() error
}

// NoopSink discards every event; it is the default when telemetry is
// disabled (ANONYMIZED_TELEMETRY=false / AGENTRT_TELEMETRY=false).
type NoopSink struct{}

func (NoopSink) Capture(Event) error { return nil }
func (NoopSink) Flush() error        { return nil }

// MemorySink keeps the last N captured events in memory, in arrival
// order, for local debugging and the optional DebugServer.
type MemorySink struct {
	mu     sync.Mutex
	cap    int
	events []Event
}

// NewMemorySink creates a MemorySink retaining at most capacity events;
// capacity <= 0 means unbounded.
func NewMemorySink(capacity int) *MemorySink {
	return &MemorySink{cap: capacity}
}

func (s *MemorySink) Capture(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	if s.cap > 0 && len(s.events) > s.cap {
		s.events = s.events[len(s.events)-s.cap:]
	}
	return nil
}

func (s *MemorySink) Flush() error { return nil }

// Events returns a snapshot copy of the captured events, oldest first.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
