package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentrt/browseragent/agenterr"
	"github.com/agentrt/browseragent/bus"
	"github.com/agentrt/browseragent/domx"
)

// recentEventsCap and closedPopupsCap bound the ring buffers backing
// BrowserStateSummary.RecentEvents and .ClosedPopupMessages so a
// long-running session doesn't grow either list unbounded (§4.7).
const (
	recentEventsCap = 20
	closedPopupsCap = 20
)

// TabInfo describes one open tab.
type TabInfo struct {
	TargetID     string
	PageID       int
	URL          string
	Title        string
	ParentPageID *int
}

// ClaimMode governs how claim_agent arbitrates access to the session.
type ClaimMode int

const (
	ClaimExclusive ClaimMode = iota
	ClaimShared
)

// BrowserStateSummary is the immutable snapshot produced for one step.
type BrowserStateSummary struct {
	URL                 string
	Title               string
	Tabs                []TabInfo
	PixelsAbove         int
	PixelsBelow         int
	BrowserErrors       []string
	LoadingStatus       string
	Screenshot          []byte
	RecentEvents        []string
	PendingNetworkReqs  []string
	PaginationButtons   []domx.PaginationCandidate
	ClosedPopupMessages []string
	ElementTree         *domx.DOMState
	RawHTML             string
}

// downloadedFile records one completed or synthetic (PDF-sniffed) download.
type downloadedFile struct {
	URL      string
	FilePath string
}

// Session is the Browser Session façade (C3). It owns the tab list,
// navigation history, downloaded-files list, and last state snapshot (it
// keeps no per-target CDP session cache), and is the sole mutator of tab state — watchdogs observe deltas via the
// bus but never mutate tabs directly (§5).
type Session struct {
	mu sync.Mutex

	driver Driver
	bus    *bus.Bus
	log    *slog.Logger

	tabs             []TabInfo
	currentTabIndex  int
	historyStack     []string
	downloadedFiles  []downloadedFile
	downloadedPaths  map[string]bool // by url path, for PDF dedup
	cachedState      *BrowserStateSummary

	recentEvents   []string          // capped ring buffer of dispatched event names
	pendingNetwork map[string]string // requestID -> URL, cleared on response
	closedPopups   []string          // capped ring buffer of auto-closed dialog descriptions

	pages map[string]PageHandle // targetID -> page

	ownsBrowserResources bool
	stopOnce             sync.Once
	stopped              bool

	claims     map[string]ClaimMode
	exclusiveBy string

	downloadsDir string
}

// NewSession constructs a Session around driver, publishing its events
// onto b. downloadsDir is where PDF auto-downloads and completed
// downloads are written.
func NewSession(driver Driver, b *bus.Bus, log *slog.Logger, downloadsDir string) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		driver:          driver,
		bus:             b,
		log:             log,
		pages:           make(map[string]PageHandle),
		downloadedPaths: make(map[string]bool),
		pendingNetwork:  make(map[string]string),
		claims:          make(map[string]ClaimMode),
		currentTabIndex: -1,
		downloadsDir:    downloadsDir,
	}
}

// Start launches the browser, marks this session as owning the browser
// resources, and opens an initial tab.
func (s *Session) Start(ctx context.Context, opts LaunchOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if opts.DownloadsDir == "" {
		opts.DownloadsDir = s.downloadsDir
	}
	if err := s.driver.Launch(ctx, opts); err != nil {
		return agenterr.New(agenterr.CodeDriverUnavailable, "launch browser", err)
	}
	s.ownsBrowserResources = true

	page, err := s.driver.NewPage(ctx)
	if err != nil {
		return agenterr.New(agenterr.CodeDriverUnavailable, "open initial page", err)
	}
	s.addPageLocked(page)
	go s.forwardEvents(page)

	s.bus.Dispatch(ctx, bus.NewEvent("BrowserStartEvent", nil, "", 0))
	return nil
}

// Stop idempotently tears down the session. Concurrent Stop calls
// dedup via sync.Once, matching the idempotent-shutdown requirement.
func (s *Session) Stop(ctx context.Context) error {
	var stopErr error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		owns := s.ownsBrowserResources
		s.stopped = true
		s.mu.Unlock()

		if owns {
			stopErr = s.driver.Close(ctx)
		}
		s.bus.Dispatch(ctx, bus.NewEvent("BrowserStopEvent", nil, "", 0))
	})
	return stopErr
}

// Kill is an alias for Stop; kept distinct in the interface so callers
// can express intent (graceful vs forceful) even though this driver
// abstraction does not currently distinguish them.
func (s *Session) Kill(ctx context.Context) error { return s.Stop(ctx) }

func (s *Session) addPageLocked(page PageHandle) {
	idx := len(s.tabs)
	s.tabs = append(s.tabs, TabInfo{TargetID: page.TargetID(), PageID: idx, URL: page.URL(), Title: page.Title()})
	s.pages[page.TargetID()] = page
	s.currentTabIndex = idx
}

// NavigateTo navigates the current tab (or a new one) to url, pushing
// onto the history stack and dispatching NavigateToUrlEvent first so the
// Security Watchdog can veto.
func (s *Session) NavigateTo(ctx context.Context, url string, timeout time.Duration, newTab bool) error {
	navEv := bus.NewEvent("NavigateToUrlEvent", NavigateToUrlPayload{URL: url}, "", timeout)
	result := s.bus.Dispatch(ctx, navEv)
	if len(result.Errors) > 0 {
		return agenterr.New(agenterr.CodeNavigationBlocked, "navigation blocked by watchdog", result.Errors[0])
	}

	s.mu.Lock()
	page, err := s.currentPageLocked()
	if newTab || err != nil {
		s.mu.Unlock()
		p, perr := s.driver.NewPage(ctx)
		if perr != nil {
			return agenterr.New(agenterr.CodeDriverUnavailable, "open new tab", perr)
		}
		s.mu.Lock()
		s.addPageLocked(p)
		go s.forwardEvents(p)
		page = p
	}
	s.mu.Unlock()

	if err := page.Goto(ctx, normalizeURL(url), timeout); err != nil {
		return agenterr.New(agenterr.CodeNavigationBlocked, "navigate failed", err)
	}

	s.mu.Lock()
	s.historyStack = append(s.historyStack, url)
	if s.currentTabIndex >= 0 && s.currentTabIndex < len(s.tabs) {
		s.tabs[s.currentTabIndex].URL = page.URL()
		s.tabs[s.currentTabIndex].Title = page.Title()
	}
	s.mu.Unlock()
	return nil
}

func normalizeURL(url string) string {
	url = strings.TrimSpace(url)
	if !strings.Contains(url, "://") {
		return "https://" + url
	}
	return url
}

// CurrentPage returns the active tab's page handle for callers, such as
// site-specific actions, that need direct page access beyond the
// Session's own navigation/state helpers.
func (s *Session) CurrentPage() (PageHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPageLocked()
}

// currentPageLocked returns the active tab's page handle. Caller holds s.mu.
func (s *Session) currentPageLocked() (PageHandle, error) {
	if s.currentTabIndex < 0 || s.currentTabIndex >= len(s.tabs) {
		return nil, fmt.Errorf("browser: no active tab")
	}
	p, ok := s.pages[s.tabs[s.currentTabIndex].TargetID]
	if !ok {
		return nil, fmt.Errorf("browser: active tab page missing")
	}
	return p, nil
}

// CurrentURL returns the focused tab's last-known URL — the same tab
// CurrentPage resolves against — so callers that only need the URL (e.g.
// the Controller's domain filter and sensitive-data redaction) don't
// have to special-case the most-recently-created tab, which need not be
// the one actually in focus.
func (s *Session) CurrentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentTabIndex < 0 || s.currentTabIndex >= len(s.tabs) {
		return ""
	}
	return s.tabs[s.currentTabIndex].URL
}

// Evaluate runs js against the focused tab, for liveness probes (e.g. the
// Crash Watchdog's document.readyState health check) that need the
// result rather than just success/failure.
func (s *Session) Evaluate(ctx context.Context, js string) (string, error) {
	s.mu.Lock()
	page, err := s.currentPageLocked()
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	return page.Evaluate(ctx, js)
}

// DiscoverNewTabs polls the driver for open pages this session hasn't
// registered yet — e.g. a target="_blank" link opened by a click — and
// adopts them, switching focus to the most recently discovered one. It
// returns the newly discovered tabs in open order, or nil if none.
func (s *Session) DiscoverNewTabs(ctx context.Context) ([]TabInfo, error) {
	pages, err := s.driver.Pages(ctx)
	if err != nil {
		return nil, agenterr.New(agenterr.CodeDriverUnavailable, "list pages", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var fresh []TabInfo
	for _, p := range pages {
		id := p.TargetID()
		if _, ok := s.pages[id]; ok {
			continue
		}
		idx := len(s.tabs)
		info := TabInfo{TargetID: id, PageID: idx, URL: p.URL(), Title: p.Title()}
		s.tabs = append(s.tabs, info)
		s.pages[id] = p
		s.currentTabIndex = idx
		go s.forwardEvents(p)
		fresh = append(fresh, info)
	}
	if len(fresh) > 0 {
		s.recordEventLocked("TabCreatedEvent")
	}
	for _, info := range fresh {
		s.bus.Dispatch(ctx, bus.NewEvent("TabCreatedEvent", info, "", 0))
	}
	return fresh, nil
}

// CreateNewTab opens a blank tab and switches to it.
func (s *Session) CreateNewTab(ctx context.Context) (TabInfo, error) {
	page, err := s.driver.NewPage(ctx)
	if err != nil {
		return TabInfo{}, agenterr.New(agenterr.CodeDriverUnavailable, "create tab", err)
	}
	s.mu.Lock()
	s.addPageLocked(page)
	info := s.tabs[s.currentTabIndex]
	s.mu.Unlock()
	go s.forwardEvents(page)
	s.bus.Dispatch(ctx, bus.NewEvent("TabCreatedEvent", info, "", 0))
	return info, nil
}

// CloseTab closes the tab at index, maintaining the tab-list invariant
// (indices of remaining tabs compact, current tab reassigned if needed).
func (s *Session) CloseTab(ctx context.Context, index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.tabs) {
		s.mu.Unlock()
		return fmt.Errorf("browser: tab index %d out of range", index)
	}
	targetID := s.tabs[index].TargetID
	page := s.pages[targetID]
	s.tabs = append(s.tabs[:index], s.tabs[index+1:]...)
	delete(s.pages, targetID)
	for i := range s.tabs {
		s.tabs[i].PageID = i
	}
	if s.currentTabIndex >= len(s.tabs) {
		s.currentTabIndex = len(s.tabs) - 1
	}
	s.mu.Unlock()

	if page != nil {
		_ = page.Close(ctx)
	}
	s.bus.Dispatch(ctx, bus.NewEvent("TabClosedEvent", targetID, "", 0))
	return nil
}

// SwitchToTab changes the active tab by index.
func (s *Session) SwitchToTab(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.tabs) {
		return fmt.Errorf("browser: tab index %d out of range", index)
	}
	s.currentTabIndex = index
	return nil
}

// GoBack, GoForward, Refresh act on the current tab.
func (s *Session) GoBack(ctx context.Context) error    { return s.withCurrentPage(ctx, func(p PageHandle) error { return p.GoBack(ctx) }) }
func (s *Session) GoForward(ctx context.Context) error { return s.withCurrentPage(ctx, func(p PageHandle) error { return p.GoForward(ctx) }) }
func (s *Session) Refresh(ctx context.Context) error   { return s.withCurrentPage(ctx, func(p PageHandle) error { return p.Reload(ctx) }) }

func (s *Session) withCurrentPage(ctx context.Context, fn func(PageHandle) error) error {
	s.mu.Lock()
	page, err := s.currentPageLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return fn(page)
}

// Ping evaluates a trivial expression on the current tab, giving the
// Screensaver Watchdog a cheap idle-keepalive probe that doesn't
// navigate anywhere.
func (s *Session) Ping(ctx context.Context) error {
	return s.withCurrentPage(ctx, func(p PageHandle) error {
		_, err := p.Evaluate(ctx, "1")
		return err
	})
}

// SaveStorageState collects cookies from the driver and dispatches
// SaveStorageStateEvent so the Storage Watchdog can serialize them to
// path (§4.4).
func (s *Session) SaveStorageState(ctx context.Context, path string) error {
	cookies, err := s.driver.Cookies(ctx)
	if err != nil {
		return agenterr.New(agenterr.CodeDownloadFailed, "collect cookies for storage state", err)
	}
	ev := bus.NewEvent("SaveStorageStateEvent", SaveStorageStatePayload{
		Path:  path,
		State: StorageState{Cookies: cookies},
	}, "", 0)
	_, err = s.bus.DispatchOrThrow(ctx, ev)
	return err
}

// LoadStorageState dispatches LoadStorageStateEvent so the Storage
// Watchdog can read and parse path; the watchdog restores the parsed
// cookies into the driver itself via the apply-cookies callback it was
// constructed with, so this package doesn't need a return path here.
func (s *Session) LoadStorageState(ctx context.Context, path string) error {
	ev := bus.NewEvent("LoadStorageStateEvent", LoadStorageStatePayload{Path: path}, "", 0)
	_, err := s.bus.DispatchOrThrow(ctx, ev)
	return err
}

// GetBrowserStateWithRecovery is the primary state producer: it
// dispatches BrowserStateRequestEvent, then composes the snapshot
// directly from the current page. The dispatch's handler results are not
// read, so no watchdog can add to or replace the snapshot.
func (s *Session) GetBrowserStateWithRecovery(ctx context.Context, includeScreenshot bool) (*BrowserStateSummary, error) {
	req := bus.NewEvent("BrowserStateRequestEvent", nil, "", 0)
	s.bus.Dispatch(ctx, req)

	s.mu.Lock()
	page, err := s.currentPageLocked()
	tabs := append([]TabInfo(nil), s.tabs...)
	s.mu.Unlock()
	if err != nil {
		return nil, agenterr.New(agenterr.CodeDriverUnavailable, "no active tab for state snapshot", err)
	}

	htmlSrc, err := page.Content(ctx)
	if err != nil {
		return nil, agenterr.New(agenterr.CodeTargetUnresponsive, "read page content", err)
	}
	state, err := domx.BuildState(htmlSrc)
	if err != nil {
		return nil, fmt.Errorf("browser: build dom state: %w", err)
	}

	s.mu.Lock()
	recentEvents := append([]string(nil), s.recentEvents...)
	closedPopups := append([]string(nil), s.closedPopups...)
	pendingNetwork := make([]string, 0, len(s.pendingNetwork))
	for _, u := range s.pendingNetwork {
		pendingNetwork = append(pendingNetwork, u)
	}
	s.mu.Unlock()
	sort.Strings(pendingNetwork)

	summary := &BrowserStateSummary{
		URL:                 page.URL(),
		Title:               page.Title(),
		Tabs:                tabs,
		LoadingStatus:       "complete",
		ElementTree:         state,
		PaginationButtons:   domx.FindPaginationControls(state),
		RawHTML:             htmlSrc,
		RecentEvents:        recentEvents,
		PendingNetworkReqs:  pendingNetwork,
		ClosedPopupMessages: closedPopups,
	}

	if includeScreenshot {
		shot, err := page.Screenshot(ctx)
		if err == nil {
			summary.Screenshot = shot
		}
	}

	s.mu.Lock()
	s.cachedState = summary
	s.mu.Unlock()
	return summary, nil
}

// ClaimAgent implements exclusive/shared session ownership arbitration.
func (s *Session) ClaimAgent(agentID string, mode ClaimMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exclusiveBy != "" && s.exclusiveBy != agentID {
		return fmt.Errorf("browser: session exclusively claimed by %q", s.exclusiveBy)
	}
	if mode == ClaimExclusive {
		if len(s.claims) > 0 {
			for id := range s.claims {
				if id != agentID {
					return fmt.Errorf("browser: cannot claim exclusively, %q already holds a claim", id)
				}
			}
		}
		s.exclusiveBy = agentID
	}
	s.claims[agentID] = mode
	return nil
}

// ReleaseAgent releases agentID's claim.
func (s *Session) ReleaseAgent(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, agentID)
	if s.exclusiveBy == agentID {
		s.exclusiveBy = ""
	}
}

// OwnsBrowserResources reports whether this session launched (and so
// must eventually close) the underlying browser process.
func (s *Session) OwnsBrowserResources() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownsBrowserResources
}

func (s *Session) forwardEvents(page PageHandle) {
	for de := range page.Events() {
		s.handleDriverEvent(page, de)
	}
}

// handleDriverEvent translates one DriverEvent into the typed bus Event
// payload watchdogs subscribe to. de.Data is already one of this
// package's own *Payload types — roddriver (and any other driver)
// constructs them directly, so no further conversion happens here; this
// is what keeps a watchdog's `ev.Payload.(browser.XPayload)` type
// assertion reliable end to end.
func (s *Session) handleDriverEvent(page PageHandle, de DriverEvent) {
	ctx := context.Background()
	switch de.Kind {
	case "crash":
		s.recordEvent("TargetCrashedEvent")
		s.bus.Dispatch(ctx, bus.NewEvent("TargetCrashedEvent", de.Data, "", 0))
	case "dialog_opened":
		s.recordEvent("DialogOpenedEvent")
		s.bus.Dispatch(ctx, bus.NewEvent("DialogOpenedEvent", de.Data, "", 0))
	case "download_started":
		s.recordEvent("DownloadStartedEvent")
		s.bus.Dispatch(ctx, bus.NewEvent("DownloadStartedEvent", de.Data, "", 0))
	case "download_progress":
		s.bus.Dispatch(ctx, bus.NewEvent("DownloadProgressEvent", de.Data, "", 0))
	case "download_completed":
		s.recordEvent("FileDownloadedEvent")
		s.recordDownload(ctx, de)
	case "network_request":
		s.trackPendingRequest(de)
		s.bus.Dispatch(ctx, bus.NewEvent("NetworkRequestEvent", de.Data, "", 0))
	case "network_response":
		s.untrackPendingRequest(de)
		s.handlePossiblePDF(ctx, page, de)
		s.bus.Dispatch(ctx, bus.NewEvent("NetworkResponseEvent", de.Data, "", 0))
	case "target_detached":
		s.recordEvent("TargetDetachedEvent")
		s.bus.Dispatch(ctx, bus.NewEvent("TargetDetachedEvent", de.Data, "", 0))
	}
}

// recordEvent appends name to the capped recent-events ring buffer
// surfaced in BrowserStateSummary.RecentEvents (§4.7).
func (s *Session) recordEvent(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordEventLocked(name)
}

// recordEventLocked is recordEvent for callers that already hold s.mu.
func (s *Session) recordEventLocked(name string) {
	s.recentEvents = append(s.recentEvents, name)
	if len(s.recentEvents) > recentEventsCap {
		s.recentEvents = s.recentEvents[len(s.recentEvents)-recentEventsCap:]
	}
}

// RecordClosedPopup appends msg to the capped closed-popup ring buffer
// surfaced in BrowserStateSummary.ClosedPopupMessages. The Dialog
// Watchdog calls this once it has auto-closed an alert/beforeunload
// dialog (§4.4).
func (s *Session) RecordClosedPopup(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closedPopups = append(s.closedPopups, msg)
	if len(s.closedPopups) > closedPopupsCap {
		s.closedPopups = s.closedPopups[len(s.closedPopups)-closedPopupsCap:]
	}
}

// DismissDialog answers a pending native dialog on targetID, for the
// Dialog Watchdog's auto-close policy.
func (s *Session) DismissDialog(ctx context.Context, targetID string, accept bool) error {
	s.mu.Lock()
	page, ok := s.pages[targetID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("browser: unknown target %q", targetID)
	}
	return page.Dismiss(ctx, accept)
}

// trackPendingRequest and untrackPendingRequest maintain the pending
// network-request map surfaced in BrowserStateSummary.PendingNetworkReqs
// (§4.7); NetworkResponseEvent clears what NetworkRequestEvent added.
func (s *Session) trackPendingRequest(de DriverEvent) {
	payload, ok := de.Data.(NetworkRequestPayload)
	if !ok {
		return
	}
	s.mu.Lock()
	s.pendingNetwork[payload.RequestID] = payload.URL
	s.mu.Unlock()
}

func (s *Session) untrackPendingRequest(de DriverEvent) {
	payload, ok := de.Data.(NetworkResponsePayload)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.pendingNetwork, payload.RequestID)
	s.mu.Unlock()
}

func (s *Session) recordDownload(ctx context.Context, de DriverEvent) {
	payload, ok := de.Data.(FileDownloadedPayload)
	if !ok {
		return
	}
	s.appendDownload(payload.URL, payload.FilePath)
	s.bus.Dispatch(ctx, bus.NewEvent("FileDownloadedEvent", payload, "", 0))
}

// appendDownload records one completed download, deduped by absolute
// FilePath (Invariant: downloaded_files never contains a duplicate
// absolute path, ever — §8 invariant 6).
func (s *Session) appendDownload(url, filePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.downloadedFiles {
		if f.FilePath == filePath {
			return
		}
	}
	s.downloadedFiles = append(s.downloadedFiles, downloadedFile{URL: url, FilePath: filePath})
}

// handlePossiblePDF implements the PDF auto-download guard: CDP MIME is
// primary and URL extension secondary (looksLikePDF). The %PDF byte-sniff
// in pdf.go is not applied here.
func (s *Session) handlePossiblePDF(ctx context.Context, page PageHandle, de DriverEvent) {
	resp, ok := de.Data.(NetworkResponsePayload)
	if !ok {
		return
	}
	if !looksLikePDF(resp.MimeType, resp.URL) {
		return
	}
	key := urlPathOnly(resp.URL)
	s.mu.Lock()
	already := s.downloadedPaths[key]
	if !already {
		s.downloadedPaths[key] = true
	}
	s.mu.Unlock()
	if already {
		return
	}
	s.appendDownload(resp.URL, s.downloadsDir)
}

func looksLikePDF(mimeType, url string) bool {
	if mimeType == "application/pdf" {
		return true
	}
	if strings.HasSuffix(strings.ToLower(urlPathOnly(url)), ".pdf") {
		return true
	}
	return false
}

func urlPathOnly(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	return url
}

// DownloadedFiles returns the append-only list of downloads so far.
func (s *Session) DownloadedFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.downloadedFiles))
	for i, f := range s.downloadedFiles {
		out[i] = f.FilePath
	}
	return out
}

// Tabs returns a snapshot of the current tab list.
func (s *Session) Tabs() []TabInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TabInfo(nil), s.tabs...)
}
