// Package redact implements the sensitive data map: a domain-scoped
// placeholder substitution layer so secrets the agent needs to type into
// a page never reach the model's context, and values the model types
// never leak into telemetry or logs.
package redact

import (
	"net/url"
	"path"
	"strings"
)

// HostOf extracts the lowercased hostname from a URL, for callers that
// hold a full page URL (e.g. Session.CurrentPage) but need the bare host
// Outbound/Inbound match against. Returns rawURL unchanged if it doesn't
// parse as a URL with a host (e.g. it's already a bare host string).
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(rawURL)
	}
	return strings.ToLower(u.Hostname())
}

// Entry maps a placeholder name to its real value for one domain glob.
type Entry struct {
	DomainGlob string
	Values     map[string]string // placeholder -> real value
}

// Map is an ordered list of domain-scoped entries. Matching is first-match:
// the first entry whose glob matches the current host wins.
type Map struct {
	entries []Entry
}

// NewMap builds a Map from the given entries, preserving order.
func NewMap(entries []Entry) *Map {
	return &Map{entries: entries}
}

func (m *Map) forHost(host string) map[string]string {
	if m == nil {
		return nil
	}
	for _, e := range m.entries {
		if matchHost(e.DomainGlob, host) {
			return e.Values
		}
	}
	return nil
}

// matchHost supports a leading "*." wildcard (e.g. "*.example.com") in
// addition to plain path.Match glob syntax over the full host.
func matchHost(glob, host string) bool {
	glob = strings.ToLower(glob)
	host = strings.ToLower(host)
	if strings.HasPrefix(glob, "*.") {
		suffix := glob[1:] // ".example.com"
		return host == glob[2:] || strings.HasSuffix(host, suffix)
	}
	ok, err := path.Match(glob, host)
	return err == nil && ok
}

// Outbound substitutes placeholders with their real values before an
// action executes against the page (e.g. input_text typing a password).
// Unknown placeholders are left untouched.
func (m *Map) Outbound(host, text string) string {
	values := m.forHost(host)
	for placeholder, real := range values {
		text = strings.ReplaceAll(text, placeholderToken(placeholder), real)
	}
	return text
}

// Inbound substitutes real values back to their placeholders before
// content reaches the model or any log/telemetry sink, so the LLM and
// anything capturing its context only ever sees the placeholder name.
func (m *Map) Inbound(host, text string) string {
	values := m.forHost(host)
	for placeholder, real := range values {
		if real == "" {
			continue
		}
		text = strings.ReplaceAll(text, real, placeholderToken(placeholder))
	}
	return text
}

// InboundAny applies Inbound substitution for every domain's entries,
// used when redacting text whose originating host is unknown or mixed
// (e.g. a full message history spanning several navigations).
func (m *Map) InboundAny(text string) string {
	if m == nil {
		return text
	}
	for _, e := range m.entries {
		for placeholder, real := range e.Values {
			if real == "" {
				continue
			}
			text = strings.ReplaceAll(text, real, placeholderToken(placeholder))
		}
	}
	return text
}

func placeholderToken(name string) string {
	return "<secret>" + name + "</secret>"
}
