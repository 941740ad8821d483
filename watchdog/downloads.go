package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/agentrt/browseragent/agenterr"
	"github.com/agentrt/browseragent/browser"
	"github.com/agentrt/browseragent/bus"
)

// ActiveDownload mirrors one in-flight entry of §3's Browser State
// Summary data model: `active_downloads: guid -> {url, suggested_filename,
// received, total, state}`.
type ActiveDownload struct {
	GUID              string
	URL               string
	SuggestedFilename string
	Received          int64
	Total             int64
	State             string
}

// DownloadCallbacks are invoked as downloads progress through their
// lifecycle. Any field may be nil. §4.4 describes "object and
// positional" registration forms; RegisterCallbacks takes the object
// form and RegisterCallbackFns the positional one.
type DownloadCallbacks struct {
	OnStart    func(ActiveDownload)
	OnProgress func(ActiveDownload)
	OnComplete func(guid, path string)
}

// pdfDedupWindow bounds how many recent download URLs are remembered for
// the per-session dedup-by-URL-path cache (§9 PDF auto-download note).
const pdfDedupWindow = 64

// DownloadsWatchdog maintains the active-download map described in §3
// and §4.4: DownloadStartedEvent inserts, DownloadProgressEvent updates,
// and FileDownloadedEvent removes (and appends to the deduped completed
// list). It also ensures the downloads directory exists on
// BrowserLaunchEvent and remembers completed download URL paths (query
// ignored) for alreadyDownloaded; the session's PDF auto-download path
// keeps its own dedup set and does not call it.
type DownloadsWatchdog struct {
	base
	downloadsDir string

	mu        sync.Mutex
	active    map[string]ActiveDownload
	completed []string // absolute paths, append-only, deduped
	seenPaths []string // URL paths seen by the PDF dedup guard
	callbacks []DownloadCallbacks
}

func NewDownloadsWatchdog(b *bus.Bus, log *slog.Logger) *DownloadsWatchdog {
	return &DownloadsWatchdog{
		base:   newBase("downloads", b, log),
		active: make(map[string]ActiveDownload),
	}
}

// WithDownloadsDir sets the directory BrowserLaunchEvent ensures exists.
func (w *DownloadsWatchdog) WithDownloadsDir(dir string) *DownloadsWatchdog {
	w.downloadsDir = dir
	return w
}

func (w *DownloadsWatchdog) Register(b *bus.Bus) error {
	w.bus = b
	if err := b.On("BrowserLaunchEvent", w.name, func(ctx context.Context, ev *bus.Event) error {
		if w.downloadsDir == "" {
			return nil
		}
		if err := os.MkdirAll(w.downloadsDir, 0o755); err != nil {
			w.reportError(ctx, agenterr.CodeDownloadFailed, "create downloads directory: "+err.Error(), err)
		}
		return nil
	}); err != nil {
		return err
	}
	if err := b.On("DownloadStartedEvent", w.name, func(ctx context.Context, ev *bus.Event) error {
		payload, ok := ev.Payload.(browser.DownloadStartedPayload)
		if !ok {
			return nil
		}
		entry := ActiveDownload{GUID: payload.GUID, URL: payload.URL, SuggestedFilename: payload.SuggestedName, State: "inProgress"}
		w.mu.Lock()
		w.active[payload.GUID] = entry
		cbs := append([]DownloadCallbacks(nil), w.callbacks...)
		w.mu.Unlock()
		for _, cb := range cbs {
			if cb.OnStart != nil {
				cb.OnStart(entry)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	if err := b.On("DownloadProgressEvent", w.name, func(ctx context.Context, ev *bus.Event) error {
		payload, ok := ev.Payload.(browser.DownloadProgressPayload)
		if !ok {
			return nil
		}
		w.mu.Lock()
		entry, found := w.active[payload.GUID]
		if !found {
			w.mu.Unlock()
			return nil
		}
		entry.Received = payload.ReceivedBytes
		entry.Total = payload.TotalBytes
		entry.State = payload.State
		w.active[payload.GUID] = entry
		cbs := append([]DownloadCallbacks(nil), w.callbacks...)
		w.mu.Unlock()
		for _, cb := range cbs {
			if cb.OnProgress != nil {
				cb.OnProgress(entry)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	return b.On("FileDownloadedEvent", w.name, func(ctx context.Context, ev *bus.Event) error {
		payload, ok := ev.Payload.(browser.FileDownloadedPayload)
		if !ok {
			return nil
		}
		w.mu.Lock()
		delete(w.active, payload.GUID)
		cbs := append([]DownloadCallbacks(nil), w.callbacks...)
		w.mu.Unlock()

		if payload.State == "canceled" {
			w.reportError(ctx, agenterr.CodeDownloadFailed, fmt.Sprintf("download canceled: %s", payload.URL), nil)
			return nil
		}

		w.mu.Lock()
		duplicate := false
		for _, p := range w.completed {
			if p == payload.FilePath {
				duplicate = true
				break
			}
		}
		if !duplicate {
			w.completed = append(w.completed, payload.FilePath)
		}
		w.remember(payload.URL)
		w.mu.Unlock()

		for _, cb := range cbs {
			if cb.OnComplete != nil {
				cb.OnComplete(payload.GUID, payload.FilePath)
			}
		}
		return nil
	})
}

// ActiveDownloads returns a snapshot of in-flight downloads, keyed by
// GUID — empty once every started download has completed or canceled
// (§8 S3).
func (w *DownloadsWatchdog) ActiveDownloads() map[string]ActiveDownload {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]ActiveDownload, len(w.active))
	for k, v := range w.active {
		out[k] = v
	}
	return out
}

// DownloadedFiles returns the append-only, deduped list of completed
// download paths this watchdog has observed.
func (w *DownloadsWatchdog) DownloadedFiles() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.completed))
	copy(out, w.completed)
	return out
}

// RegisterCallbacks adds cbs to the set notified on each download
// lifecycle transition (object form, §4.4).
func (w *DownloadsWatchdog) RegisterCallbacks(cbs DownloadCallbacks) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cbs)
}

// RegisterCallbackFns is the positional-argument form of
// RegisterCallbacks.
func (w *DownloadsWatchdog) RegisterCallbackFns(onStart, onProgress func(ActiveDownload), onComplete func(guid, path string)) {
	w.RegisterCallbacks(DownloadCallbacks{OnStart: onStart, OnProgress: onProgress, OnComplete: onComplete})
}

// ResetCallbacks restores the callback set to empty. Go func values
// aren't comparable, so unregistering one specific prior registration by
// identity isn't possible; callers that need that instead keep their own
// handle on what they registered and rebuild the set from scratch here.
func (w *DownloadsWatchdog) ResetCallbacks() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = nil
}

// alreadyDownloaded reports whether url's path component was downloaded
// earlier in this session, ignoring query parameters — the PDF
// auto-download guard's per-session dedup cache.
func (w *DownloadsWatchdog) alreadyDownloaded(url string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := urlPath(url)
	for _, s := range w.seenPaths {
		if s == key {
			return true
		}
	}
	return false
}

func (w *DownloadsWatchdog) remember(url string) {
	key := urlPath(url)
	for _, s := range w.seenPaths {
		if s == key {
			return
		}
	}
	w.seenPaths = append(w.seenPaths, key)
	if len(w.seenPaths) > pdfDedupWindow {
		w.seenPaths = w.seenPaths[len(w.seenPaths)-pdfDedupWindow:]
	}
}

func urlPath(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}

func (w *DownloadsWatchdog) Stop() {}
