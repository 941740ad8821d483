package actions

import (
	"context"
	"testing"
	"time"

	"github.com/agentrt/browseragent/browser"
	"github.com/agentrt/browseragent/bus"
	"github.com/agentrt/browseragent/redact"
)

// fakePage is a minimal browser.PageHandle for driving the Controller
// without a real CDP browser, mirroring the pattern in
// browser/session_test.go.
type fakePage struct {
	url    string
	events chan browser.DriverEvent
}

func newFakePage() *fakePage { return &fakePage{url: "about:blank", events: make(chan browser.DriverEvent)} }

func (p *fakePage) TargetID() string { return "t1" }
func (p *fakePage) URL() string      { return p.url }
func (p *fakePage) Title() string    { return "title" }
func (p *fakePage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	p.url = url
	return nil
}
func (p *fakePage) Evaluate(ctx context.Context, js string) (string, error) { return "", nil }
func (p *fakePage) Content(ctx context.Context) (string, error)             { return "<html></html>", nil }
func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error)          { return []byte("png"), nil }
func (p *fakePage) Click(ctx context.Context, selector string) error        { return nil }
func (p *fakePage) Fill(ctx context.Context, selector, text string) error   { return nil }
func (p *fakePage) PressKeys(ctx context.Context, keys string) error        { return nil }
func (p *fakePage) Scroll(ctx context.Context, dy int) error                { return nil }
func (p *fakePage) ClickXPath(ctx context.Context, xpath string) error      { return nil }
func (p *fakePage) FillXPath(ctx context.Context, xpath, text string) error { return nil }
func (p *fakePage) SelectXPath(ctx context.Context, xpath, optionText string) error {
	return nil
}
func (p *fakePage) UploadXPath(ctx context.Context, xpath string, paths []string) error {
	return nil
}
func (p *fakePage) GoBack(ctx context.Context) error               { return nil }
func (p *fakePage) GoForward(ctx context.Context) error            { return nil }
func (p *fakePage) Reload(ctx context.Context) error               { return nil }
func (p *fakePage) Close(ctx context.Context) error                { close(p.events); return nil }
func (p *fakePage) Dismiss(ctx context.Context, accept bool) error { return nil }
func (p *fakePage) Events() <-chan browser.DriverEvent             { return p.events }

// newSessionAt builds a Session whose current tab is focused on url, for
// tests that need Controller.Execute's domain filter and redaction to
// resolve against a real active tab rather than a zero-value Session.
func newSessionAt(t *testing.T, url string) *browser.Session {
	t.Helper()
	s := newSessionWithPage(t, newFakePage())
	if err := s.NavigateTo(context.Background(), url, time.Second, false); err != nil {
		t.Fatalf("NavigateTo: %v", err)
	}
	return s
}

// newSessionWithPage builds a Session around an arbitrary PageHandle, for
// tests that need control over Content() beyond what fakePage's default
// blank document provides.
func newSessionWithPage(t *testing.T, page browser.PageHandle) *browser.Session {
	t.Helper()
	s := browser.NewSession(&driverWithPage{page: page}, bus.New(nil), nil, t.TempDir())
	if err := s.Start(context.Background(), browser.LaunchOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

type driverWithPage struct{ page browser.PageHandle }

func (d *driverWithPage) Launch(ctx context.Context, opts browser.LaunchOptions) error { return nil }
func (d *driverWithPage) Close(ctx context.Context) error                              { return nil }
func (d *driverWithPage) NewPage(ctx context.Context) (browser.PageHandle, error)      { return d.page, nil }
func (d *driverWithPage) Pages(ctx context.Context) ([]browser.PageHandle, error) {
	return []browser.PageHandle{d.page}, nil
}
func (d *driverWithPage) Cookies(ctx context.Context) ([]browser.Cookie, error) { return nil, nil }
func (d *driverWithPage) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	return nil
}

func TestExecuteInvokesHandlerOnlyWhenParamsValid(t *testing.T) {
	var invoked bool
	r := NewRegistry()
	d := &Declaration{
		Name:   "greet",
		Params: []ParamField{{Name: "name", Type: "string", Required: true}},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			invoked = true
			return &Result{Success: true}, nil
		},
	}
	if err := r.Register(d); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.Freeze()
	c := NewController(r)

	if _, err := c.Execute(&Context{}, "greet", map[string]any{}); err == nil {
		t.Fatal("expected error for missing required parameter")
	}
	if invoked {
		t.Fatal("handler must not run when parameter validation fails")
	}

	if _, err := c.Execute(&Context{}, "greet", map[string]any{"name": "alice"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !invoked {
		t.Fatal("handler must run once parameter validation passes")
	}
}

func TestExecuteRejectsUnknownAction(t *testing.T) {
	r := NewRegistry()
	r.Freeze()
	c := NewController(r)
	if _, err := c.Execute(&Context{}, "does_not_exist", nil); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestExecuteBlocksDisallowedDomain(t *testing.T) {
	r := NewRegistry()
	d := &Declaration{
		Name:           "sheet_only",
		AllowedDomains: []string{"docs.google.com"},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			return &Result{Success: true}, nil
		},
	}
	if err := r.Register(d); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.Freeze()
	c := NewController(r)

	session := newSessionAt(t, "https://example.com/page")
	if _, err := c.Execute(&Context{Session: session}, "sheet_only", map[string]any{}); err == nil {
		t.Fatal("expected domain-blocked error on the focused tab's host")
	}

	sheetsSession := newSessionAt(t, "https://docs.google.com/spreadsheets/d/1")
	if _, err := c.Execute(&Context{Session: sheetsSession}, "sheet_only", map[string]any{}); err != nil {
		t.Fatalf("Execute on allowed domain: %v", err)
	}
}

func TestExecuteRedactsSensitiveParamsOnFocusedTabHost(t *testing.T) {
	var seen string
	r := NewRegistry()
	d := &Declaration{
		Name:   "type_password",
		Params: []ParamField{{Name: "text", Type: "string", Required: true}},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			seen, _ = params["text"].(string)
			return &Result{Success: true}, nil
		},
	}
	if err := r.Register(d); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.Freeze()
	c := NewController(r)

	sensitive := redact.NewMap([]redact.Entry{
		{DomainGlob: "example.com", Values: map[string]string{"pw": "hunter2"}},
	})
	session := newSessionAt(t, "https://example.com/login")
	actx := &Context{Session: session, SensitiveData: sensitive}

	if _, err := c.Execute(actx, "type_password", map[string]any{"text": "<secret>pw</secret>"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if seen != "hunter2" {
		t.Fatalf("expected placeholder substituted with real value on the focused host, got %q", seen)
	}
}

func TestExecuteDoesNotRedactOnUnrelatedHost(t *testing.T) {
	var seen string
	r := NewRegistry()
	d := &Declaration{
		Name:   "type_password",
		Params: []ParamField{{Name: "text", Type: "string", Required: true}},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			seen, _ = params["text"].(string)
			return &Result{Success: true}, nil
		},
	}
	if err := r.Register(d); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.Freeze()
	c := NewController(r)

	sensitive := redact.NewMap([]redact.Entry{
		{DomainGlob: "example.com", Values: map[string]string{"pw": "hunter2"}},
	})
	session := newSessionAt(t, "https://other.test/login")
	actx := &Context{Session: session, SensitiveData: sensitive}

	if _, err := c.Execute(actx, "type_password", map[string]any{"text": "<secret>pw</secret>"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if seen != "<secret>pw</secret>" {
		t.Fatalf("expected placeholder left untouched on unrelated host, got %q", seen)
	}
}

func TestExecuteWrapsHandlerErrorAsResult(t *testing.T) {
	r := NewRegistry()
	d := &Declaration{
		Name: "always_fails",
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			return nil, errTest{}
		},
	}
	if err := r.Register(d); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.Freeze()
	c := NewController(r)

	result, err := c.Execute(&Context{}, "always_fails", nil)
	if err != nil {
		t.Fatalf("Execute should surface handler failures as a Result, not an error: %v", err)
	}
	if result.Error == nil {
		t.Fatal("expected a populated ErrorDetail")
	}
}

type errTest struct{}

func (errTest) Error() string { return "boom" }
