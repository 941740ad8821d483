package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentrt/browseragent/agenterr"
	"github.com/agentrt/browseragent/browser"
	"github.com/agentrt/browseragent/bus"
)

// dialogAutoDismissAfter bounds how long an unhandled (non-alert,
// non-beforeunload) dialog is allowed to block the page before the
// watchdog reports it as stuck — a native dialog left open otherwise
// wedges every subsequent CDP call.
const dialogAutoDismissAfter = 5 * time.Second

// DialogWatchdog auto-closes alert/beforeunload dialogs — the only two
// kinds §4.4 authorizes a blanket auto-close for, since accepting a
// confirm/prompt on the agent's behalf could silently commit to
// something it never decided — and reports every other dialog as
// DialogUnhandled once dialogAutoDismissAfter has passed, without
// checking whether it is still open, since an open dialog silently blocks
// all further navigation/evaluation.
type DialogWatchdog struct {
	base
	dismiss  func(ctx context.Context, targetID string, accept bool) error
	onClosed func(msg string)
}

// NewDialogWatchdog takes the session's dismiss callback (e.g.
// Session.DismissDialog) and a closed-popup recorder (e.g.
// Session.RecordClosedPopup) so this package doesn't depend on browser
// directly, matching the callback-injection pattern NewScreensaverWatchdog
// and NewStorageWatchdog already use.
func NewDialogWatchdog(b *bus.Bus, log *slog.Logger, dismiss func(ctx context.Context, targetID string, accept bool) error, onClosed func(msg string)) *DialogWatchdog {
	return &DialogWatchdog{base: newBase("dialog", b, log), dismiss: dismiss, onClosed: onClosed}
}

func (w *DialogWatchdog) Register(b *bus.Bus) error {
	w.bus = b
	return b.On("DialogOpenedEvent", w.name, func(ctx context.Context, ev *bus.Event) error {
		payload, ok := ev.Payload.(browser.DialogOpenedPayload)
		if !ok {
			return nil
		}
		if payload.Type != "alert" && payload.Type != "beforeunload" {
			go w.watchForStuckDialog(payload)
			return nil
		}
		if w.dismiss != nil {
			if err := w.dismiss(ctx, payload.TargetID, true); err != nil {
				w.reportError(ctx, agenterr.CodeDialogUnhandled, "auto-close failed: "+payload.Type, err)
				return nil
			}
		}
		if w.onClosed != nil {
			w.onClosed(fmt.Sprintf("%s: %s", payload.Type, payload.Message))
		}
		return nil
	})
}

func (w *DialogWatchdog) watchForStuckDialog(payload browser.DialogOpenedPayload) {
	time.Sleep(dialogAutoDismissAfter)
	// The browser session clears any DialogOpenedEvent bookkeeping once it
	// handles (accepts/dismisses) a dialog; this watchdog has no way to
	// observe that directly without another event, so it reports every
	// confirm/prompt dialog that reaches this timer as a best-effort signal
	// for the agent loop to notice via BrowserErrorEvent and decide whether
	// to retry.
	w.reportError(context.Background(), agenterr.CodeDialogUnhandled,
		"dialog left open past timeout: "+payload.Type, nil)
}

func (w *DialogWatchdog) Stop() {}
