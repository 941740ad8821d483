package agentloop

import (
	"context"
	"testing"
	"time"

	"github.com/agentrt/browseragent/actions"
	"github.com/agentrt/browseragent/browser"
	"github.com/agentrt/browseragent/bus"
	"github.com/agentrt/browseragent/chatmodel"
	"github.com/agentrt/browseragent/config"
	"github.com/agentrt/browseragent/fsys"
	"github.com/agentrt/browseragent/messages"
)

// fakePage is a minimal browser.PageHandle for driving the loop without
// a real CDP browser, mirroring the pattern in browser/session_test.go.
type fakePage struct {
	url    string
	events chan browser.DriverEvent
}

func newFakePage() *fakePage { return &fakePage{url: "about:blank", events: make(chan browser.DriverEvent)} }

func (p *fakePage) TargetID() string                                         { return "t1" }
func (p *fakePage) URL() string                                              { return p.url }
func (p *fakePage) Title() string                                            { return "title" }
func (p *fakePage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	p.url = url
	return nil
}
func (p *fakePage) Evaluate(ctx context.Context, js string) (string, error) { return "", nil }
func (p *fakePage) Content(ctx context.Context) (string, error) {
	return "<html><body><a href=\"#\">Next</a></body></html>", nil
}
func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error)         { return []byte("png"), nil }
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
func (p *fakePage) Events() <-chan browser.DriverEvent                     { return p.events }

type fakeDriver struct{ page *fakePage }

func (d *fakeDriver) Launch(ctx context.Context, opts browser.LaunchOptions) error { return nil }
func (d *fakeDriver) Close(ctx context.Context) error                              { return nil }
func (d *fakeDriver) NewPage(ctx context.Context) (browser.PageHandle, error)      { return d.page, nil }
func (d *fakeDriver) Pages(ctx context.Context) ([]browser.PageHandle, error) {
	return []browser.PageHandle{d.page}, nil
}
func (d *fakeDriver) Cookies(ctx context.Context) ([]browser.Cookie, error) { return nil, nil }
func (d *fakeDriver) SetCookies(ctx context.Context, cookies []browser.Cookie) error { return nil }

// scriptedModel returns one canned completion per call, in order.
type scriptedModel struct {
	completions []string
	calls       int
}

func (m *scriptedModel) Invoke(ctx context.Context, msgs []chatmodel.Message, opts chatmodel.InvokeOptions) (*chatmodel.Completion, error) {
	i := m.calls
	if i >= len(m.completions) {
		i = len(m.completions) - 1
	}
	m.calls++
	return &chatmodel.Completion{Text: m.completions[i]}, nil
}

func newTestLoop(t *testing.T, model chatmodel.Model, cfg config.AgentConfig) *Loop {
	t.Helper()
	b := bus.New(nil)
	session := browser.NewSession(&fakeDriver{page: newFakePage()}, b, nil, t.TempDir())
	if err := session.Start(context.Background(), browser.LaunchOptions{}); err != nil {
		t.Fatalf("session start: %v", err)
	}
	t.Cleanup(func() { _ = session.Stop(context.Background()) })

	registry := actions.NewRegistry()
	if err := actions.RegisterDefaults(registry); err != nil {
		t.Fatalf("register defaults: %v", err)
	}
	registry.Freeze()
	controller := actions.NewController(registry)

	builder := messages.NewBuilder(messages.Options{Task: "t", ActionSet: registry.All()}, nil)
	fs := fsys.New()

	if cfg.MaxSteps == 0 {
		cfg = config.AgentConfig{
			MaxSteps:          5,
			MaxActionsPerStep: 5,
			MaxFailures:       3,
			LLMTimeout:        time.Second,
			LLMMaxRetries:     0,
		}
	}

	return New(Deps{
		Session:    session,
		Controller: controller,
		Model:      model,
		Builder:    builder,
		FileSystem: fs,
		RunID:      "run-1",
	}, cfg)
}

func TestRunReachesDoneSuccessOnDoneAction(t *testing.T) {
	model := &scriptedModel{completions: []string{
		`{"actions":[{"action_name":"done","parameters":{"success":true,"text":"finished"}}]}`,
	}}
	loop := newTestLoop(t, model, config.AgentConfig{})

	result, err := loop.Run(context.Background(), "do the thing")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeDoneSuccess {
		t.Fatalf("outcome = %s, want done-success", result.Outcome)
	}
	if result.Text != "finished" {
		t.Fatalf("text = %q", result.Text)
	}
	if result.Steps != 1 {
		t.Fatalf("steps = %d, want 1", result.Steps)
	}
}

func TestRunExhaustsStepBudgetWithoutDone(t *testing.T) {
	model := &scriptedModel{completions: []string{
		`{"actions":[{"action_name":"wait","parameters":{"seconds":0}}]}`,
	}}
	cfg := config.AgentConfig{MaxSteps: 2, MaxActionsPerStep: 5, MaxFailures: 10, LLMTimeout: time.Second}
	loop := newTestLoop(t, model, cfg)

	result, err := loop.Run(context.Background(), "loop forever")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeExhausted {
		t.Fatalf("outcome = %s, want exhausted", result.Outcome)
	}
	if result.Steps != 2 {
		t.Fatalf("steps = %d, want 2", result.Steps)
	}
}

func TestRunFailsAfterConsecutiveFailureBudget(t *testing.T) {
	model := &scriptedModel{completions: []string{
		`{"actions":[{"action_name":"not_a_real_action","parameters":{}}]}`,
	}}
	cfg := config.AgentConfig{MaxSteps: 10, MaxActionsPerStep: 5, MaxFailures: 2, LLMTimeout: time.Second}
	loop := newTestLoop(t, model, cfg)

	result, err := loop.Run(context.Background(), "fail repeatedly")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeDoneFailure {
		t.Fatalf("outcome = %s, want done-failure", result.Outcome)
	}
	if result.Steps != 2 {
		t.Fatalf("steps = %d, want 2 (consecutive-failure budget)", result.Steps)
	}
}

func TestParseDecisionStripsThinkBlock(t *testing.T) {
	raw := "<think>reasoning here</think>" + `{"actions":[{"action_name":"wait","parameters":{}}]}`
	out, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision: %v", err)
	}
	if len(out.Actions) != 1 || out.Actions[0].Name != "wait" {
		t.Fatalf("unexpected decision: %+v", out)
	}
}

func TestParseDecisionHandlesFencedJSON(t *testing.T) {
	raw := "```json\n{\"actions\":[{\"action_name\":\"wait\",\"parameters\":{}}]}\n```"
	out, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision: %v", err)
	}
	if len(out.Actions) != 1 {
		t.Fatalf("unexpected decision: %+v", out)
	}
}
