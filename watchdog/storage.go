package watchdog

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/agentrt/browseragent/agenterr"
	"github.com/agentrt/browseragent/browser"
	"github.com/agentrt/browseragent/bus"
)

// StorageWatchdog handles SaveStorageStateEvent/LoadStorageStateEvent by
// serializing cookies and origins to the configured path and emitting
// StorageStateSaved/Loaded with counts (§4.4). Failures are reported as
// BrowserErrorEvent, never fatal — the session can continue operating
// without a fresh snapshot on disk.
type StorageWatchdog struct {
	base
	applyCookies func(ctx context.Context, cookies []browser.Cookie) error
}

// NewStorageWatchdog takes an optional applyCookies func so a successful
// LoadStorageStateEvent can restore cookies into the driver without this
// package importing roddriver directly; pass nil to only parse and
// report counts.
func NewStorageWatchdog(b *bus.Bus, log *slog.Logger, applyCookies func(ctx context.Context, cookies []browser.Cookie) error) *StorageWatchdog {
	return &StorageWatchdog{base: newBase("storage", b, log), applyCookies: applyCookies}
}

func (w *StorageWatchdog) Register(b *bus.Bus) error {
	w.bus = b
	if err := b.On("SaveStorageStateEvent", w.name, func(ctx context.Context, ev *bus.Event) error {
		payload, ok := ev.Payload.(browser.SaveStorageStatePayload)
		if !ok {
			return nil
		}
		data, err := json.MarshalIndent(payload.State, "", "  ")
		if err != nil {
			w.reportError(ctx, agenterr.CodeDownloadFailed, "marshal storage state: "+payload.Path, err)
			return nil
		}
		if err := os.WriteFile(payload.Path, data, 0o600); err != nil {
			w.reportError(ctx, agenterr.CodeDownloadFailed, "write storage state: "+payload.Path, err)
			return nil
		}
		w.bus.Dispatch(ctx, bus.NewEvent("StorageStateSaved", browser.StorageStateSavedPayload{
			Path:        payload.Path,
			CookieCount: len(payload.State.Cookies),
			OriginCount: len(payload.State.Origins),
		}, ev.EventID, 0))
		return nil
	}); err != nil {
		return err
	}
	return b.On("LoadStorageStateEvent", w.name, func(ctx context.Context, ev *bus.Event) error {
		payload, ok := ev.Payload.(browser.LoadStorageStatePayload)
		if !ok {
			return nil
		}
		data, err := os.ReadFile(payload.Path)
		if err != nil {
			w.reportError(ctx, agenterr.CodeDownloadFailed, "read storage state: "+payload.Path, err)
			return nil
		}
		var state browser.StorageState
		if err := json.Unmarshal(data, &state); err != nil {
			w.reportError(ctx, agenterr.CodeDownloadFailed, "parse storage state: "+payload.Path, err)
			return nil
		}
		if w.applyCookies != nil && len(state.Cookies) > 0 {
			if err := w.applyCookies(ctx, state.Cookies); err != nil {
				w.reportError(ctx, agenterr.CodeDownloadFailed, "apply loaded cookies: "+payload.Path, err)
				return nil
			}
		}
		w.bus.Dispatch(ctx, bus.NewEvent("StorageStateLoaded", browser.StorageStateLoadedPayload{
			Path:        payload.Path,
			State:       state,
			CookieCount: len(state.Cookies),
			OriginCount: len(state.Origins),
		}, ev.EventID, 0))
		return nil
	})
}

func (w *StorageWatchdog) Stop() {}
