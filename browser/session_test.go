package browser

import (
	"context"
	"testing"
	"time"

	"github.com/agentrt/browseragent/bus"
)

// fakePage is a minimal PageHandle for exercising Session logic without a
// real browser, matching the teacher's preference for lightweight fakes
// over a mocking library in package-level tests.
type fakePage struct {
	id     string
	url    string
	title  string
	events chan DriverEvent
}

func newFakePage(id string) *fakePage {
	return &fakePage{id: id, url: "about:blank", events: make(chan DriverEvent)}
}

func (p *fakePage) TargetID() string { return p.id }
func (p *fakePage) URL() string      { return p.url }
func (p *fakePage) Title() string    { return p.title }
func (p *fakePage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	p.url = url
	return nil
}
func (p *fakePage) Evaluate(ctx context.Context, js string) (string, error) { return "", nil }
func (p *fakePage) Content(ctx context.Context) (string, error)             { return "<html><body></body></html>", nil }
func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error)          { return []byte("fake"), nil }
func (p *fakePage) Click(ctx context.Context, selector string) error       { return nil }
func (p *fakePage) Fill(ctx context.Context, selector, text string) error  { return nil }
func (p *fakePage) PressKeys(ctx context.Context, keys string) error       { return nil }
func (p *fakePage) Scroll(ctx context.Context, dy int) error               { return nil }
func (p *fakePage) ClickXPath(ctx context.Context, xpath string) error     { return nil }
func (p *fakePage) FillXPath(ctx context.Context, xpath, text string) error { return nil }
func (p *fakePage) SelectXPath(ctx context.Context, xpath, optionText string) error { return nil }
func (p *fakePage) UploadXPath(ctx context.Context, xpath string, paths []string) error { return nil }
func (p *fakePage) GoBack(ctx context.Context) error                       { return nil }
func (p *fakePage) GoForward(ctx context.Context) error                    { return nil }
func (p *fakePage) Reload(ctx context.Context) error                       { return nil }
func (p *fakePage) Close(ctx context.Context) error                        { close(p.events); return nil }
func (p *fakePage) Dismiss(ctx context.Context, accept bool) error         { return nil }
func (p *fakePage) Events() <-chan DriverEvent                             { return p.events }

type fakeDriver struct {
	nextID  int
	pages   []*fakePage
	cookies []Cookie
}

func (d *fakeDriver) Launch(ctx context.Context, opts LaunchOptions) error { return nil }
func (d *fakeDriver) Close(ctx context.Context) error                      { return nil }
func (d *fakeDriver) NewPage(ctx context.Context) (PageHandle, error) {
	d.nextID++
	p := newFakePage(pageID(d.nextID))
	d.pages = append(d.pages, p)
	return p, nil
}
func (d *fakeDriver) Pages(ctx context.Context) ([]PageHandle, error) {
	out := make([]PageHandle, len(d.pages))
	for i, p := range d.pages {
		out[i] = p
	}
	return out, nil
}
func (d *fakeDriver) Cookies(ctx context.Context) ([]Cookie, error)          { return d.cookies, nil }
func (d *fakeDriver) SetCookies(ctx context.Context, cookies []Cookie) error { d.cookies = cookies; return nil }

func pageID(n int) string {
	return "page-" + string(rune('0'+n))
}

func TestSessionStartOpensInitialTab(t *testing.T) {
	s := NewSession(&fakeDriver{}, bus.New(nil), nil, t.TempDir())
	if err := s.Start(context.Background(), LaunchOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(s.Tabs()) != 1 {
		t.Fatalf("expected 1 tab after Start, got %d", len(s.Tabs()))
	}
}

func TestSessionCloseTabCompactsIndices(t *testing.T) {
	s := NewSession(&fakeDriver{}, bus.New(nil), nil, t.TempDir())
	_ = s.Start(context.Background(), LaunchOptions{})
	_, _ = s.CreateNewTab(context.Background())
	_, _ = s.CreateNewTab(context.Background())

	if len(s.Tabs()) != 3 {
		t.Fatalf("expected 3 tabs, got %d", len(s.Tabs()))
	}
	if err := s.CloseTab(context.Background(), 0); err != nil {
		t.Fatalf("CloseTab: %v", err)
	}
	tabs := s.Tabs()
	if len(tabs) != 2 {
		t.Fatalf("expected 2 tabs after close, got %d", len(tabs))
	}
	for i, tb := range tabs {
		if tb.PageID != i {
			t.Fatalf("tab %d has PageID %d, want %d (indices not compacted)", i, tb.PageID, i)
		}
	}
}

func TestClaimAgentExclusiveRejectsCompetingClaimant(t *testing.T) {
	s := NewSession(&fakeDriver{}, bus.New(nil), nil, t.TempDir())
	if err := s.ClaimAgent("agent-a", ClaimExclusive); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := s.ClaimAgent("agent-b", ClaimExclusive); err == nil {
		t.Fatal("expected competing exclusive claim to be rejected")
	}
}

func TestSniffPDFBytes(t *testing.T) {
	if !SniffPDFBytes([]byte("%PDF-1.4 rest of file")) {
		t.Fatal("expected %PDF-prefixed body to be detected")
	}
	if SniffPDFBytes([]byte("<html>not a pdf</html>")) {
		t.Fatal("expected non-PDF body to be rejected")
	}
}
