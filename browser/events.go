package browser

import "time"

// Event payloads dispatched by Session onto the Bus. These live here
// rather than in the watchdog package because Session is the sole
// producer of browser-observed deltas (§4.3/§5); watchdog subscribers
// import these types instead of declaring their own shadow copies, so a
// type assertion on the consuming side always matches what Session
// actually dispatches.

// NavigateToUrlPayload is dispatched before Session.NavigateTo actually
// navigates, so a watchdog (e.g. the Security Watchdog) can veto by
// returning an error.
type NavigateToUrlPayload struct {
	URL string
}

// TargetCrashedPayload is dispatched when the driver reports a renderer
// crash (CDP Inspector.targetCrashed) for a tab.
type TargetCrashedPayload struct {
	TargetID string
}

// DialogOpenedPayload is dispatched when the driver reports
// Page.javascriptDialogOpening.
type DialogOpenedPayload struct {
	TargetID string
	Type     string // "alert", "confirm", "prompt", "beforeunload"
	Message  string
}

// TargetDetachedPayload is dispatched when the driver's CDP session for
// a target drops (Target.detachedFromTarget).
type TargetDetachedPayload struct {
	TargetID string
	Reason   string
}

// NetworkRequestPayload mirrors the subset of CDP Network.requestWillBeSent
// a HAR recorder needs.
type NetworkRequestPayload struct {
	RequestID string
	URL       string
	Method    string
	Timestamp time.Time
}

// NetworkResponsePayload mirrors CDP Network.responseReceived.
type NetworkResponsePayload struct {
	RequestID string
	URL       string
	Status    int64
	MimeType  string
	Timestamp time.Time
}

// DownloadStartedPayload is dispatched when the driver reports a new
// download beginning (CDP Page.downloadWillBegin).
type DownloadStartedPayload struct {
	GUID          string
	URL           string
	SuggestedName string
	StartedAt     time.Time
}

// DownloadProgressPayload is dispatched on each download progress tick
// (CDP Page.downloadProgress).
type DownloadProgressPayload struct {
	GUID          string
	ReceivedBytes int64
	TotalBytes    int64
	State         string // "inProgress", "completed", "canceled"
}

// FileDownloadedPayload is dispatched when a download finishes, whether
// through the driver's own download machinery or the PDF auto-download
// content-sniff guard (§4.3).
type FileDownloadedPayload struct {
	GUID     string
	URL      string
	FilePath string
	MimeType string
	State    string // "completed", "canceled"
}

// Cookie mirrors the subset of CDP Network.Cookie storage-state
// persistence needs.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  float64
	HTTPOnly bool
	Secure   bool
	SameSite string
}

// OriginStorage is one origin's localStorage snapshot (§4.5 "Persisted
// state: Storage state JSON ... cookies, origin storage").
type OriginStorage struct {
	Origin       string
	LocalStorage map[string]string
}

// StorageState is the full persisted shape written to the storage-state
// JSON file.
type StorageState struct {
	Cookies []Cookie        `json:"cookies"`
	Origins []OriginStorage `json:"origins"`
}

// SaveStorageStateEvent payload: Session has already collected Cookies
// from the driver; Origins is left empty, as no per-origin storage is
// collected. The Storage Watchdog serializes it to Path.
type SaveStorageStatePayload struct {
	Path  string
	State StorageState
}

// LoadStorageStateEvent payload: Session asks the Storage Watchdog to
// read and parse Path; the code that builds the watchdog supplies the
// cookie-applying callback to watchdog.NewStorageWatchdog (cmd/browseragent
// passes the driver's SetCookies) so the watchdog can restore
// the parsed cookies into the driver without this package depending on
// watchdog.
type LoadStorageStatePayload struct {
	Path string
}

// StorageStateSavedPayload is what the Storage Watchdog emits after a
// successful SaveStorageStateEvent, per §4.4's "emitting
// StorageStateSaved/Loaded with counts".
type StorageStateSavedPayload struct {
	Path        string
	CookieCount int
	OriginCount int
}

// StorageStateLoadedPayload is what the Storage Watchdog emits after a
// successful LoadStorageStateEvent.
type StorageStateLoadedPayload struct {
	Path        string
	State       StorageState
	CookieCount int
	OriginCount int
}
