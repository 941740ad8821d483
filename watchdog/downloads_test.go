package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/agentrt/browseragent/browser"
	"github.com/agentrt/browseragent/bus"
)

// TestDownloadBookkeeping is §8's S3 scenario: DownloadStartedEvent then
// FileDownloadedEvent leaves active_downloads empty and downloaded_files
// holding exactly the one path; redispatching the same FileDownloadedEvent
// does not duplicate it.
func TestDownloadBookkeeping(t *testing.T) {
	b := bus.New(nil)
	w := NewDownloadsWatchdog(b, nil)
	if err := w.Register(b); err != nil {
		t.Fatalf("Register: %v", err)
	}

	started := bus.NewEvent("DownloadStartedEvent", browser.DownloadStartedPayload{GUID: "g1", URL: "u", SuggestedName: "f.pdf"}, "", time.Second)
	b.Dispatch(context.Background(), started)

	if len(w.ActiveDownloads()) != 1 {
		t.Fatalf("active downloads = %d, want 1 after DownloadStartedEvent", len(w.ActiveDownloads()))
	}

	completed := bus.NewEvent("FileDownloadedEvent", browser.FileDownloadedPayload{GUID: "g1", URL: "u", FilePath: "/tmp/f.pdf", State: "completed"}, "", time.Second)
	b.Dispatch(context.Background(), completed)

	if len(w.ActiveDownloads()) != 0 {
		t.Fatalf("active downloads = %d, want 0 after FileDownloadedEvent", len(w.ActiveDownloads()))
	}
	if got := w.DownloadedFiles(); len(got) != 1 || got[0] != "/tmp/f.pdf" {
		t.Fatalf("downloaded files = %v, want [/tmp/f.pdf]", got)
	}

	// Redispatching the same completion must not duplicate the path.
	b.Dispatch(context.Background(), completed)
	if got := w.DownloadedFiles(); len(got) != 1 {
		t.Fatalf("downloaded files = %v, want still exactly one entry", got)
	}
}

func TestDownloadsWatchdogSuppressesDuplicateByURLPath(t *testing.T) {
	b := bus.New(nil)
	w := NewDownloadsWatchdog(b, nil)
	if err := w.Register(b); err != nil {
		t.Fatalf("Register: %v", err)
	}

	payload := browser.FileDownloadedPayload{URL: "https://site.test/f.pdf?x=1", FilePath: "/tmp/f.pdf", State: "completed"}
	ev1 := bus.NewEvent("FileDownloadedEvent", payload, "", time.Second)
	b.Dispatch(context.Background(), ev1)

	if !w.alreadyDownloaded("https://site.test/f.pdf?x=2") {
		t.Fatal("expected dedup to match on url path ignoring query string")
	}
}

func TestDownloadCallbacksFireOnEachTransition(t *testing.T) {
	b := bus.New(nil)
	w := NewDownloadsWatchdog(b, nil)
	if err := w.Register(b); err != nil {
		t.Fatalf("Register: %v", err)
	}

	var started, progressed, completed bool
	w.RegisterCallbackFns(
		func(ActiveDownload) { started = true },
		func(ActiveDownload) { progressed = true },
		func(guid, path string) { completed = true },
	)

	b.Dispatch(context.Background(), bus.NewEvent("DownloadStartedEvent", browser.DownloadStartedPayload{GUID: "g2", URL: "u"}, "", time.Second))
	b.Dispatch(context.Background(), bus.NewEvent("DownloadProgressEvent", browser.DownloadProgressPayload{GUID: "g2", ReceivedBytes: 10, TotalBytes: 100, State: "inProgress"}, "", time.Second))
	b.Dispatch(context.Background(), bus.NewEvent("FileDownloadedEvent", browser.FileDownloadedPayload{GUID: "g2", URL: "u", FilePath: "/tmp/g2", State: "completed"}, "", time.Second))

	if !started || !progressed || !completed {
		t.Fatalf("expected all three callbacks to fire, got started=%v progressed=%v completed=%v", started, progressed, completed)
	}
}
