package watchdog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/har"

	"github.com/agentrt/browseragent/browser"
	"github.com/agentrt/browseragent/bus"
)

// TestHARCapturesHTTPSOnly verifies §4.4's "records requests/responses
// for HTTPS traffic only": a plain-HTTP pair is dropped, an HTTPS pair
// survives into the written HAR document.
func TestHARCapturesHTTPSOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.har")

	b := bus.New(nil)
	w := NewHARWatchdog(b, nil, path)
	if err := w.Register(b); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	now := time.Now()

	b.Dispatch(ctx, bus.NewEvent("NetworkRequestEvent", browser.NetworkRequestPayload{
		RequestID: "plain", URL: "http://example.com/", Method: "GET", Timestamp: now,
	}, "", time.Second))
	b.Dispatch(ctx, bus.NewEvent("NetworkResponseEvent", browser.NetworkResponsePayload{
		RequestID: "plain", URL: "http://example.com/", Status: 200, MimeType: "text/html", Timestamp: now,
	}, "", time.Second))

	b.Dispatch(ctx, bus.NewEvent("NetworkRequestEvent", browser.NetworkRequestPayload{
		RequestID: "secure", URL: "https://example.com/", Method: "GET", Timestamp: now,
	}, "", time.Second))
	b.Dispatch(ctx, bus.NewEvent("NetworkResponseEvent", browser.NetworkResponsePayload{
		RequestID: "secure", URL: "https://example.com/", Status: 200, MimeType: "text/html", Timestamp: now.Add(50 * time.Millisecond),
	}, "", time.Second))

	entries := w.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 (HTTPS only)", len(entries))
	}
	if entries[0].Request.URL != "https://example.com/" {
		t.Fatalf("captured URL = %q, want the HTTPS one", entries[0].Request.URL)
	}

	w.Stop()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var doc har.HAR
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal HAR output: %v", err)
	}
	if doc.Log.Version != "1.2" {
		t.Fatalf("HAR version = %q, want 1.2", doc.Log.Version)
	}
	if len(doc.Log.Entries) != 1 {
		t.Fatalf("written HAR entries = %d, want 1", len(doc.Log.Entries))
	}
}

// TestHARStopReportsEmptyCapture is §4.4's "Emits BrowserError events
// for missing/empty/stat-failed outputs": an HTTPS-free run writes
// nothing and reports a BrowserErrorEvent instead.
func TestHARStopReportsEmptyCapture(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.har")

	b := bus.New(nil)
	w := NewHARWatchdog(b, nil, path)
	if err := w.Register(b); err != nil {
		t.Fatalf("Register: %v", err)
	}

	var errCode string
	if err := b.On("BrowserErrorEvent", "test-observer", func(ctx context.Context, ev *bus.Event) error {
		if p, ok := ev.Payload.(BrowserErrorPayload); ok {
			errCode = p.Code
		}
		return nil
	}); err != nil {
		t.Fatalf("On: %v", err)
	}

	w.Stop()

	if errCode != "HAR_WRITE_FAILED" {
		t.Fatalf("errCode = %q, want HAR_WRITE_FAILED", errCode)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no file written for an empty capture, stat err = %v", err)
	}
}
