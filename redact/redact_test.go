package redact

import "testing"

func TestOutboundSubstitutesRealValueOnMatchingDomain(t *testing.T) {
	m := NewMap([]Entry{
		{DomainGlob: "*.example.com", Values: map[string]string{"username": "alice@corp.test"}},
	})
	got := m.Outbound("login.example.com", "user: <secret>username</secret>")
	want := "user: alice@corp.test"
	if got != want {
		t.Fatalf("Outbound = %q, want %q", got, want)
	}
}

func TestOutboundLeavesOtherDomainsUntouched(t *testing.T) {
	m := NewMap([]Entry{
		{DomainGlob: "*.example.com", Values: map[string]string{"username": "alice@corp.test"}},
	})
	got := m.Outbound("other.test", "user: <secret>username</secret>")
	if got != "user: <secret>username</secret>" {
		t.Fatalf("Outbound modified text for non-matching domain: %q", got)
	}
}

func TestInboundRoundTripsOutboundSubstitution(t *testing.T) {
	m := NewMap([]Entry{
		{DomainGlob: "example.com", Values: map[string]string{"pw": "hunter2"}},
	})
	placeholder := "typed: <secret>pw</secret>"
	real := m.Outbound("example.com", placeholder)
	back := m.Inbound("example.com", real)
	if back != placeholder {
		t.Fatalf("Inbound(Outbound(x)) = %q, want %q", back, placeholder)
	}
}

func TestInboundAnyRedactsAcrossAllDomains(t *testing.T) {
	m := NewMap([]Entry{
		{DomainGlob: "a.com", Values: map[string]string{"secretA": "valueA"}},
		{DomainGlob: "b.com", Values: map[string]string{"secretB": "valueB"}},
	})
	got := m.InboundAny("saw valueA and valueB in the page")
	if got != "saw <secret>secretA</secret> and <secret>secretB</secret> in the page" {
		t.Fatalf("InboundAny = %q", got)
	}
}
