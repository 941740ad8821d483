package agentloop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentrt/browseragent/actions"
	"github.com/agentrt/browseragent/agenterr"
	"github.com/agentrt/browseragent/browser"
	"github.com/agentrt/browseragent/chatmodel"
	"github.com/agentrt/browseragent/config"
	"github.com/agentrt/browseragent/fsys"
	"github.com/agentrt/browseragent/messages"
	"github.com/agentrt/browseragent/redact"
	"github.com/agentrt/browseragent/telemetry"
)

// defaultAgentID identifies this loop's claim on the browser session (§4.3
// exclusive/shared ownership) when Deps.AgentID is empty.
const defaultAgentID = "agent-loop"

// shortTermMemorySteps bounds how many recent steps' extracted
// long-term-memory notes feed the builder's "Memory:" line.
const shortTermMemorySteps = 5

// Loop drives the think -> act -> observe cycle (C6) over a Session,
// Controller, and chat Model. One Loop instance handles one run (one
// task); build a new Loop per run.
type Loop struct {
	session    *browser.Session
	controller *actions.Controller
	model      chatmodel.Model
	builder    *messages.Builder
	history    *messages.History
	fileSystem *fsys.FileSystem
	sensitive  *redact.Map
	telemetry  telemetry.Sink
	log        *slog.Logger
	cfg        config.AgentConfig
	agentID    string
	runID      string

	llmLimiter *rate.Limiter

	mu           sync.Mutex
	state        State
	stepIndex    int
	consecutive  int
	currentURL   string
	pauseCh      chan struct{}
	paused       bool
	cancelled    atomic.Bool
}

// Deps bundles everything a Loop needs beyond its per-run Config.
type Deps struct {
	Session    *browser.Session
	Controller *actions.Controller
	Model      chatmodel.Model
	Builder    *messages.Builder
	FileSystem *fsys.FileSystem
	Sensitive  *redact.Map
	Telemetry  telemetry.Sink
	Log        *slog.Logger
	RunID      string
	AgentID    string
}

// New builds a Loop ready to Run. cfg is read once at construction,
// matching §9's "global state read once at startup" note applied to a
// single run's configuration.
func New(deps Deps, cfg config.AgentConfig) *Loop {
	agentID := deps.AgentID
	if agentID == "" {
		agentID = defaultAgentID
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	sink := deps.Telemetry
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	return &Loop{
		session:    deps.Session,
		controller: deps.Controller,
		model:      deps.Model,
		builder:    deps.Builder,
		history:    messages.NewHistory(),
		fileSystem: deps.FileSystem,
		sensitive:  deps.Sensitive,
		telemetry:  sink,
		log:        log,
		cfg:        cfg,
		agentID:    agentID,
		runID:      deps.RunID,
		llmLimiter: newRetryLimiter(200 * time.Millisecond),
		state:      StateIdle,
		pauseCh:    make(chan struct{}),
	}
}

// History exposes the run's recorded steps, e.g. for a caller assembling
// a post-run report.
func (l *Loop) History() *messages.History { return l.history }

// CurrentStep implements telemetry.StateProvider for the optional
// DebugServer.
func (l *Loop) CurrentStep() telemetry.StepSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return telemetry.StepSnapshot{
		RunID:     l.runID,
		State:     string(l.state),
		StepIndex: l.stepIndex,
		URL:       l.currentURL,
	}
}

// Pause transitions the loop to Paused after its current step unwinds.
func (l *Loop) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.paused {
		l.paused = true
	}
}

// Resume releases a paused loop.
func (l *Loop) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.paused {
		l.paused = false
		close(l.pauseCh)
		l.pauseCh = make(chan struct{})
	}
}

// Cancel requests the loop terminate after the current LLM call or
// action unwinds (§5 cancellation propagation).
func (l *Loop) Cancel() { l.cancelled.Store(true) }

func (l *Loop) waitIfPaused(ctx context.Context) error {
	for {
		l.mu.Lock()
		paused := l.paused
		ch := l.pauseCh
		l.mu.Unlock()
		if !paused {
			return nil
		}
		l.setState(StatePaused)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run executes the step loop for task until it reaches a terminal state
// or ctx is cancelled (§4.6).
func (l *Loop) Run(ctx context.Context, task string) (*Result, error) {
	if err := l.session.ClaimAgent(l.agentID, browser.ClaimExclusive); err != nil {
		return nil, fmt.Errorf("agentloop: claim session: %w", err)
	}
	defer l.session.ReleaseAgent(l.agentID)

	var runErrors []string
	outcome := OutcomeExhausted
	var finalText string

	for {
		if l.cancelled.Load() || ctx.Err() != nil {
			outcome = OutcomeAborted
			break
		}
		if err := l.waitIfPaused(ctx); err != nil {
			outcome = OutcomeAborted
			break
		}

		l.setState(StateStepping)
		item, done, success, stepErr := l.step(ctx, task)
		l.history.Append(item)
		l.mu.Lock()
		l.stepIndex++
		l.mu.Unlock()

		if len(item.Errors) > 0 {
			runErrors = append(runErrors, item.Errors...)
		}
		if stepErr != nil {
			runErrors = append(runErrors, stepErr.Error())
		}

		if item.Succeeded() {
			l.consecutive = 0
		} else {
			l.consecutive++
		}

		if done {
			if success {
				outcome = OutcomeDoneSuccess
			} else {
				outcome = OutcomeDoneFailure
			}
			finalText = doneText(item)
			break
		}

		if l.consecutive >= maxInt(l.cfg.MaxFailures, 1) {
			outcome = OutcomeDoneFailure
			runErrors = append(runErrors, agenterr.New(agenterr.CodeConsecutiveFailures, "consecutive action failures exceeded budget", nil).Error())
			break
		}

		if l.detectLoop() {
			outcome = OutcomeDoneFailure
			runErrors = append(runErrors, agenterr.New(agenterr.CodeLoopDetected, "loop detected", nil).Error())
			break
		}

		if l.stepIndex >= maxInt(l.cfg.MaxSteps, 1) {
			outcome = OutcomeExhausted
			if l.cfg.FinalResponseAfterFail {
				finalText = l.synthesizeFinalResponse(ctx, task)
			}
			break
		}
	}

	switch outcome {
	case OutcomeDoneSuccess, OutcomeDoneFailure:
		l.setState(stateFor(outcome))
	default:
		l.setState(StateFailed)
	}

	l.captureTelemetry(outcome, runErrors)

	return &Result{
		Outcome: outcome,
		Text:    finalText,
		Steps:   l.stepIndex,
		Errors:  runErrors,
	}, nil
}

func stateFor(o Outcome) State {
	if o == OutcomeDoneSuccess {
		return StateDone
	}
	return StateFailed
}

// step runs exactly one iteration of think -> act -> observe, returning
// the recorded history item, whether `done` was reached, its success
// flag, and any error that ended the step early (browser-state fetch,
// LLM call, or decision parse).
func (l *Loop) step(ctx context.Context, task string) (messages.HistoryItem, bool, bool, error) {
	start := time.Now()
	item := messages.HistoryItem{StepIndex: l.stepIndex, StartedAt: start}

	l.setState(StateObserving)
	state, err := l.session.GetBrowserStateWithRecovery(ctx, l.cfg.IncludeScreenshot)
	if err != nil {
		item.Errors = append(item.Errors, err.Error())
		item.Duration = time.Since(start)
		return item, false, false, err
	}
	l.mu.Lock()
	l.currentURL = state.URL
	l.mu.Unlock()
	item.StateSnapshotID = state.URL

	msgs := l.builder.Build(messages.StepInput{
		State:            state,
		History:          l.history,
		FileSystem:       l.fileSystem,
		ShortTermMemory:  l.history.ShortTermSummary(shortTermMemorySteps),
		RecentEventNames: state.RecentEvents,
		PendingNetwork:   state.PendingNetworkReqs,
		ClosedPopups:     state.ClosedPopupMessages,
	})

	l.setState(StateWaitingLLM)
	llmCtx, cancel := context.WithTimeout(ctx, l.cfg.LLMTimeout)
	defer cancel()
	completion, err := invokeWithRetry(llmCtx, l.model, msgs, chatmodel.InvokeOptions{RequestType: chatmodel.RequestTypeStep},
		l.cfg.LLMMaxRetries, l.llmLimiter, 500*time.Millisecond, 20*time.Second)
	if err != nil {
		item.Errors = append(item.Errors, err.Error())
		item.Duration = time.Since(start)
		return item, false, false, err
	}
	if completion.Usage != nil {
		item.TokenUsage = messages.TokenUsage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		}
	}

	decision, err := ParseDecision(completion.Text)
	if err != nil {
		item.Errors = append(item.Errors, err.Error())
		item.Duration = time.Since(start)
		return item, false, false, err
	}
	item.ModelOutput = decision

	l.setState(StateActing)
	results, done, success := l.executeActions(ctx, decision)
	item.ActionResults = results
	item.Duration = time.Since(start)

	for _, r := range results {
		if r.Error != nil {
			item.Errors = append(item.Errors, r.Error.Message)
		}
	}

	return item, done, success, nil
}

// executeActions runs a step's decided actions sequentially, stopping
// at the first `done` or error (§4.6 step 6), capped at
// MaxActionsPerStep.
func (l *Loop) executeActions(ctx context.Context, decision messages.ModelOutput) ([]*actions.Result, bool, bool) {
	invocations := decision.Actions
	if max := l.cfg.MaxActionsPerStep; max > 0 && len(invocations) > max {
		invocations = invocations[:max]
	}

	actx := &actions.Context{
		Session:        l.session,
		SensitiveData:  l.sensitive,
		FileSystem:     l.fileSystem,
		AvailableFiles: fileNames(l.fileSystem),
		Ctx:            ctx,
	}

	var results []*actions.Result
	for _, inv := range invocations {
		if l.cancelled.Load() {
			break
		}
		result, err := l.controller.Execute(actx, inv.Name, inv.Parameters)
		if err != nil {
			results = append(results, &actions.Result{Error: &actions.ErrorDetail{Code: agenterr.CodeInvalidParams, Message: err.Error()}})
			break
		}
		results = append(results, result)
		if result.Error != nil {
			break
		}
		if result.IsDone {
			return results, true, result.Success
		}
	}
	return results, false, false
}

func fileNames(fs *fsys.FileSystem) []string {
	if fs == nil {
		return nil
	}
	return fs.List()
}

// detectLoop implements §4.6's optional loop detection: if the last
// LoopDetectionWindow action names repeat identically with the URL
// unchanged across that window, the run is judged stuck.
func (l *Loop) detectLoop() bool {
	window := l.cfg.LoopDetectionWindow
	if window <= 0 || l.history.Len() < window {
		return false
	}
	names := l.history.RecentActionNames(window)
	if len(names) < window {
		return false
	}
	first := names[0]
	for _, n := range names[1:] {
		if n != first {
			return false
		}
	}

	items := l.history.Items()
	if len(items) < window {
		return false
	}
	recent := items[len(items)-window:]
	url := recent[0].StateSnapshotID
	for _, it := range recent[1:] {
		if it.StateSnapshotID != url {
			return false
		}
	}
	return true
}

// synthesizeFinalResponse asks the model for a best-effort summary when
// the step budget is exhausted without a `done`, per §4.6's
// final_response_after_failure option.
func (l *Loop) synthesizeFinalResponse(ctx context.Context, task string) string {
	prompt := fmt.Sprintf("The step budget for this task was exhausted before calling done. Task: %q. Summarize progress made and what remains.", task)
	text, err := chatmodel.Complete(ctx, l.model, prompt)
	if err != nil {
		l.log.Warn("final response synthesis failed", "error", err)
		return ""
	}
	return text
}

func (l *Loop) captureTelemetry(outcome Outcome, errs []string) {
	ev := telemetry.Event{
		RunID:      l.runID,
		Steps:      l.stepIndex,
		Success:    outcome == OutcomeDoneSuccess,
		OccurredAt: time.Now(),
	}
	if len(errs) > 0 {
		ev.Error = errs[len(errs)-1]
	}
	for _, item := range l.history.Items() {
		ev.Tokens += item.TokenUsage.TotalTokens
	}
	ev = telemetry.Redact(ev, l.sensitive)
	if err := l.telemetry.Capture(ev); err != nil {
		l.log.Warn("telemetry capture failed", "error", err)
	}
}

func doneText(item messages.HistoryItem) string {
	for _, r := range item.ActionResults {
		if r != nil && r.IsDone {
			return r.ExtractedContent
		}
	}
	return ""
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
