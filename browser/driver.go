// Package browser implements the Browser Session (C3): a stateful
// façade over a CDP-driven browser, holding the tab list, navigation
// history, and downloaded-files list (no per-target CDP session cache), and exposing
// the operations the agent loop and action handlers need without
// depending on any concrete browser driver.
package browser

import (
	"context"
	"time"
)

// Driver is the capability set this package consumes from a concrete
// browser automation library (§6). Any driver implementing Driver can be
// plugged in; this package never imports a CDP library directly, only
// the roddriver subpackage does.
type Driver interface {
	Launch(ctx context.Context, opts LaunchOptions) error
	Close(ctx context.Context) error

	NewPage(ctx context.Context) (PageHandle, error)
	Pages(ctx context.Context) ([]PageHandle, error)

	// Cookies returns every cookie currently set in the browser context,
	// for storage-state persistence.
	Cookies(ctx context.Context) ([]Cookie, error)
	// SetCookies restores cookies into the browser context, for
	// storage-state restore.
	SetCookies(ctx context.Context, cookies []Cookie) error
}

// LaunchOptions configures how the driver starts the underlying browser
// process.
type LaunchOptions struct {
	Headless   bool
	NoSandbox  bool
	BrowserBin string
	Proxy      string
	Stealth    bool

	// DownloadsDir, if set, configures the driver to save CDP-driven
	// downloads there under their suggested filename (§4.3's PDF
	// auto-download and §4.4's Downloads Watchdog both assume files land
	// in this directory).
	DownloadsDir string
}

// PageHandle is the per-tab capability set: navigation, evaluation, and
// input primitives, plus a channel of CDP-originated events the session
// forwards onto the bus.
type PageHandle interface {
	TargetID() string
	URL() string
	Title() string

	Goto(ctx context.Context, url string, timeout time.Duration) error
	Evaluate(ctx context.Context, js string) (string, error)
	Content(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)

	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, text string) error
	PressKeys(ctx context.Context, keys string) error
	Scroll(ctx context.Context, dy int) error

	// ClickXPath, FillXPath, SelectXPath, and UploadXPath address an
	// element by XPath rather than CSS selector, for the highlight-index
	// action set (domx.ElementNode only carries an XPath, never a CSS
	// selector). Click/Fill above stay CSS-based for callers, such as the
	// Google Sheets helpers, that already know a literal selector.
	ClickXPath(ctx context.Context, xpath string) error
	FillXPath(ctx context.Context, xpath, text string) error
	SelectXPath(ctx context.Context, xpath, optionText string) error
	UploadXPath(ctx context.Context, xpath string, paths []string) error

	GoBack(ctx context.Context) error
	GoForward(ctx context.Context) error
	Reload(ctx context.Context) error
	Close(ctx context.Context) error

	// Dismiss answers a currently-open native dialog (alert/confirm/
	// prompt/beforeunload), for the Dialog Watchdog's auto-close policy.
	Dismiss(ctx context.Context, accept bool) error

	// Events returns a channel of driver-level events (crash, dialog,
	// download, network request/response, target detach) the session
	// translates into bus dispatches. The channel is closed when the
	// page closes.
	Events() <-chan DriverEvent
}

// DriverEvent is a driver-level occurrence forwarded to the session for
// translation into a bus Event.
type DriverEvent struct {
	Kind string // "crash", "dialog_opened", "download_started", "download_progress", "download_completed", "network_request", "network_response", "target_detached"
	Data any
}
