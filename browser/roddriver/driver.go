// Package roddriver is the default browser.Driver implementation,
// backed by github.com/go-rod/rod, matching the teacher's launcher-flag
// and stealth-injection conventions (scraper/scraper.go, scraper/page.go)
// but adapted from a page-pool scraping model to the long-lived, single
// active session a browser automation agent needs.
package roddriver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/agentrt/browseragent/browser"
)

// Driver is the rod-backed implementation of browser.Driver.
type Driver struct {
	browser      *rod.Browser
	stealth      bool
	downloadsDir string
	log          *slog.Logger
}

// New constructs an unlaunched Driver.
func New(log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	return &Driver{log: log}
}

// Launch starts a Chromium process with the stealth-oriented flag set
// the teacher applies in scraper/scraper.go, and connects rod to it.
func (d *Driver) Launch(ctx context.Context, opts browser.LaunchOptions) error {
	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(opts.NoSandbox)

	if opts.BrowserBin != "" {
		l = l.Bin(opts.BrowserBin)
	}
	if opts.Proxy != "" {
		l = l.Proxy(opts.Proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("roddriver: launch: %w", err)
	}
	d.log.Info("browser launched", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("roddriver: connect: %w", err)
	}
	d.browser = b
	d.stealth = opts.Stealth
	d.downloadsDir = opts.DownloadsDir

	if d.downloadsDir != "" {
		behavior := proto.BrowserSetDownloadBehavior{
			Behavior:     proto.BrowserSetDownloadBehaviorBehaviorAllow,
			DownloadPath: d.downloadsDir,
		}
		if err := behavior.Call(b); err != nil {
			return fmt.Errorf("roddriver: set download behavior: %w", err)
		}
	}
	return nil
}

// Close closes the underlying browser process.
func (d *Driver) Close(ctx context.Context) error {
	if d.browser == nil {
		return nil
	}
	return d.browser.Close()
}

// NewPage opens a new tab, optionally injecting go-rod/stealth's
// evasion script before any site script runs.
func (d *Driver) NewPage(ctx context.Context) (browser.PageHandle, error) {
	page, err := d.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("roddriver: new page: %w", err)
	}
	if d.stealth {
		if err := stealth.Inject(page); err != nil {
			d.log.Warn("stealth injection failed", "err", err)
		}
	}
	ph := newPage(page, d.log, d.downloadsDir)
	ph.listen()
	return ph, nil
}

// Pages returns every currently open tab.
func (d *Driver) Pages(ctx context.Context) ([]browser.PageHandle, error) {
	pages, err := d.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("roddriver: list pages: %w", err)
	}
	out := make([]browser.PageHandle, 0, len(pages))
	for _, p := range pages {
		ph := newPage(p, d.log, d.downloadsDir)
		ph.listen()
		out = append(out, ph)
	}
	return out, nil
}

// Cookies returns every cookie visible to the browser's first open tab
// via CDP Network.getCookies, matching the snapshot pattern session
// forking uses elsewhere in the ecosystem.
func (d *Driver) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	page, err := d.anyPage()
	if err != nil || page == nil {
		return nil, err
	}
	res, err := proto.NetworkGetCookies{}.Call(page)
	if err != nil {
		return nil, fmt.Errorf("roddriver: get cookies: %w", err)
	}
	out := make([]browser.Cookie, 0, len(res.Cookies))
	for _, c := range res.Cookies {
		out = append(out, browser.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out, nil
}

// SetCookies restores cookies into the browser's first open tab via CDP
// Network.setCookies.
func (d *Driver) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	page, err := d.anyPage()
	if err != nil || page == nil {
		return err
	}
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  proto.TimeSinceEpoch(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		})
	}
	if err := page.SetCookies(params); err != nil {
		return fmt.Errorf("roddriver: set cookies: %w", err)
	}
	return nil
}

// anyPage returns the browser's first open tab, for driver-level
// operations (cookies) that CDP scopes to a target rather than the
// browser as a whole. Returns (nil, nil) if no tab is open yet.
func (d *Driver) anyPage() (*rod.Page, error) {
	if d.browser == nil {
		return nil, nil
	}
	pages, err := d.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("roddriver: list pages for cookies: %w", err)
	}
	if len(pages) == 0 {
		return nil, nil
	}
	return pages[0], nil
}

var _ browser.Driver = (*Driver)(nil)

// navTimeoutOr returns timeout if positive, else a conservative default
// matching the teacher's NavigationTimeout default.
func navTimeoutOr(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return 15 * time.Second
}
