package watchdog

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/har"

	"github.com/agentrt/browseragent/agenterr"
	"github.com/agentrt/browseragent/browser"
	"github.com/agentrt/browseragent/bus"
)

// HARWatchdog assembles a HAR 1.2 capture for the current session by
// correlating NetworkRequestEvent/NetworkResponseEvent on RequestID and
// writes it to Path on Stop. Only HTTPS traffic is recorded, per §4.4.
// Entry/timing assembly follows tomasbasham-har-capture's
// internal/capture/har.go use of github.com/chromedp/cdproto/har.
type HARWatchdog struct {
	base
	path    string
	mu      sync.Mutex
	pending map[string]browser.NetworkRequestPayload
	entries []*har.Entry
}

// NewHARWatchdog builds a watchdog that writes its capture to path on
// Stop. An empty path disables the watchdog entirely (Register still
// succeeds but no traffic is recorded or written).
func NewHARWatchdog(b *bus.Bus, log *slog.Logger, path string) *HARWatchdog {
	return &HARWatchdog{
		base:    newBase("har", b, log),
		path:    path,
		pending: make(map[string]browser.NetworkRequestPayload),
	}
}

func (w *HARWatchdog) Register(b *bus.Bus) error {
	w.bus = b
	if w.path == "" {
		return nil
	}
	if err := b.On("NetworkRequestEvent", w.name, func(ctx context.Context, ev *bus.Event) error {
		payload, ok := ev.Payload.(browser.NetworkRequestPayload)
		if !ok || !isHTTPS(payload.URL) {
			return nil
		}
		w.mu.Lock()
		w.pending[payload.RequestID] = payload
		w.mu.Unlock()
		return nil
	}); err != nil {
		return err
	}
	return b.On("NetworkResponseEvent", w.name, func(ctx context.Context, ev *bus.Event) error {
		payload, ok := ev.Payload.(browser.NetworkResponsePayload)
		if !ok || !isHTTPS(payload.URL) {
			return nil
		}
		w.mu.Lock()
		req, found := w.pending[payload.RequestID]
		if found {
			delete(w.pending, payload.RequestID)
		}
		w.mu.Unlock()
		if !found {
			return nil
		}
		w.mu.Lock()
		w.entries = append(w.entries, buildEntry(req, payload))
		w.mu.Unlock()
		return nil
	})
}

// isHTTPS restricts capture to HTTPS traffic only, per §4.4: "records
// requests/responses for HTTPS traffic only".
func isHTTPS(u string) bool {
	return strings.HasPrefix(strings.ToLower(u), "https://")
}

func buildEntry(req browser.NetworkRequestPayload, resp browser.NetworkResponsePayload) *har.Entry {
	elapsedMS := float64(resp.Timestamp.Sub(req.Timestamp)) / float64(time.Millisecond)
	if elapsedMS < 0 {
		elapsedMS = 0
	}
	entry := &har.Entry{
		StartedDateTime: req.Timestamp.Format(time.RFC3339Nano),
		Time:            elapsedMS,
		Request: &har.Request{
			Method:      req.Method,
			URL:         req.URL,
			HTTPVersion: "HTTP/1.1",
			Headers:     []*har.NameValuePair{},
			QueryString: []*har.NameValuePair{},
			Cookies:     []*har.Cookie{},
			HeadersSize: -1,
			BodySize:    -1,
		},
		Response: &har.Response{
			Status:      resp.Status,
			StatusText:  "",
			HTTPVersion: "HTTP/1.1",
			Headers:     []*har.NameValuePair{},
			Cookies:     []*har.Cookie{},
			Content: &har.Content{
				MimeType: resp.MimeType,
				Size:     0,
			},
			HeadersSize: -1,
			BodySize:    -1,
		},
		Timings: &har.Timings{
			Blocked: -1,
			DNS:     -1,
			Connect: -1,
			Ssl:     -1,
			Send:    0,
			Wait:    elapsedMS,
			Receive: 0,
		},
	}
	return entry
}

// Entries returns a snapshot of the HAR entries captured so far.
func (w *HARWatchdog) Entries() []*har.Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*har.Entry, len(w.entries))
	copy(out, w.entries)
	return out
}

// Stop writes the accumulated capture to Path as HAR 1.2 JSON. Per §4.4
// it reports BrowserErrorEvent for missing/empty/stat-failed outputs
// rather than panicking or silently dropping the capture.
func (w *HARWatchdog) Stop() {
	if w.path == "" {
		return
	}
	w.mu.Lock()
	entries := make([]*har.Entry, len(w.entries))
	copy(entries, w.entries)
	w.mu.Unlock()

	ctx := context.Background()
	if len(entries) == 0 {
		w.reportError(ctx, agenterr.CodeHARWriteFailed, "no HTTPS traffic captured, nothing written to "+w.path, nil)
		return
	}

	doc := har.HAR{
		Log: &har.Log{
			Version: "1.2",
			Creator: &har.Creator{Name: "browseragent", Version: "1.0"},
			Entries: entries,
		},
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		w.reportError(ctx, agenterr.CodeHARWriteFailed, "marshal HAR capture: "+w.path, err)
		return
	}
	if err := os.WriteFile(w.path, data, 0o600); err != nil {
		w.reportError(ctx, agenterr.CodeHARWriteFailed, "write HAR capture: "+w.path, err)
		return
	}
	if fi, err := os.Stat(w.path); err != nil {
		w.reportError(ctx, agenterr.CodeHARWriteFailed, "stat HAR output: "+w.path, err)
	} else if fi.Size() == 0 {
		w.reportError(ctx, agenterr.CodeHARWriteFailed, "HAR output is empty: "+w.path, nil)
	}
}
