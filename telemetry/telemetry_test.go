package telemetry

import (
	"testing"

	"github.com/agentrt/browseragent/redact"
)

func TestMemorySinkRetainsOnlyLastCapacityEvents(t *testing.T) {
	s := NewMemorySink(2)
	_ = s.Capture(Event{RunID: "1"})
	_ = s.Capture(Event{RunID: "2"})
	_ = s.Capture(Event{RunID: "3"})

	got := s.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 retained events, got %d", len(got))
	}
	if got[0].RunID != "2" || got[1].RunID != "3" {
		t.Fatalf("expected oldest event evicted, got %+v", got)
	}
}

func TestRedactStripsSensitiveValuesFromEventStrings(t *testing.T) {
	m := redact.NewMap([]redact.Entry{
		{DomainGlob: "a.com", Values: map[string]string{"pw": "hunter2"}},
	})
	ev := Event{Error: "login failed for hunter2"}
	got := Redact(ev, m)
	if got.Error == ev.Error {
		t.Fatal("expected Error field to be redacted")
	}
	if got.Error != "login failed for <secret>pw</secret>" {
		t.Fatalf("unexpected redacted error: %q", got.Error)
	}
}

func TestNoopSinkDiscardsEverything(t *testing.T) {
	var s Sink = NoopSink{}
	if err := s.Capture(Event{RunID: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
