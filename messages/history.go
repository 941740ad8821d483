// Package messages implements the Message Builder & History (C7): it
// turns a browser state snapshot plus the running history into the
// chat-model message list for one step, and owns the AgentHistoryItem
// log the step loop appends to.
package messages

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentrt/browseragent/actions"
	"github.com/agentrt/browseragent/browser"
)

// ModelOutput is the parsed decision the LLM returned for a step:
// free-form reasoning plus the action invocations it chose.
type ModelOutput struct {
	Thinking string
	Actions  []ActionInvocation
}

// ActionInvocation is one action call as parsed from the model's
// completion, before the controller validates and executes it.
type ActionInvocation struct {
	Name       string
	Parameters map[string]any
}

// TokenUsage mirrors chatmodel.Usage without importing that package,
// keeping messages free of a dependency cycle back to chatmodel (which
// has no reason to know about history items).
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// HistoryItem is one step's complete record (§3 Agent History Item).
type HistoryItem struct {
	StepIndex       int
	ModelOutput     ModelOutput
	ActionResults   []*actions.Result
	StateSnapshotID string
	StartedAt       time.Time
	Duration        time.Duration
	TokenUsage      TokenUsage
	Errors          []string
}

// Succeeded reports whether at least one action in this step completed
// without error — the step loop resets consecutive_failures on this.
func (h HistoryItem) Succeeded() bool {
	for _, r := range h.ActionResults {
		if r != nil && r.Error == nil {
			return true
		}
	}
	return false
}

// IsDone reports whether this step's actions reached the terminal done
// action.
func (h HistoryItem) IsDone() bool {
	for _, r := range h.ActionResults {
		if r != nil && r.IsDone {
			return true
		}
	}
	return false
}

// History is the append-only log of every step taken during a run, plus
// the compaction state covering steps that have been summarized away.
type History struct {
	items           []HistoryItem
	compactedNote   string
	compactedUpto   int // items[:compactedUpto] have been folded into compactedNote
}

// NewHistory creates an empty History.
func NewHistory() *History {
	return &History{}
}

// Append adds one step's record.
func (h *History) Append(item HistoryItem) {
	h.items = append(h.items, item)
}

// Len reports the number of steps recorded, including compacted ones.
func (h *History) Len() int { return len(h.items) }

// Items returns every recorded step, oldest first.
func (h *History) Items() []HistoryItem { return h.items }

// Last returns the most recent step, or the zero value and false if
// history is empty.
func (h *History) Last() (HistoryItem, bool) {
	if len(h.items) == 0 {
		return HistoryItem{}, false
	}
	return h.items[len(h.items)-1], true
}

// RecentActionNames returns the last n action names across the most
// recent steps, most recent last — the loop-detection window's raw
// material (§4.6).
func (h *History) RecentActionNames(n int) []string {
	var names []string
	for i := len(h.items) - 1; i >= 0 && len(names) < n; i-- {
		step := h.items[i]
		for j := len(step.ModelOutput.Actions) - 1; j >= 0 && len(names) < n; j-- {
			names = append([]string{step.ModelOutput.Actions[j].Name}, names...)
		}
	}
	return names
}

// Compact folds every item before keepFrom into a single condensed note,
// replacing their individual turns in the rendered message list with one
// assistant summary. Sensitive-data placeholders in the folded text are
// untouched (compaction is a pure string op over already-redacted text),
// satisfying the "placeholders survive compaction" requirement (§4.7).
func (h *History) Compact(keepFrom int, summarize func([]HistoryItem) string) {
	if keepFrom <= h.compactedUpto || keepFrom > len(h.items) {
		return
	}
	toFold := h.items[h.compactedUpto:keepFrom]
	note := summarize(toFold)
	if h.compactedNote == "" {
		h.compactedNote = note
	} else {
		h.compactedNote = h.compactedNote + "\n" + note
	}
	h.compactedUpto = keepFrom
}

// CompactedNote returns the condensed summary of folded steps, or "" if
// nothing has been compacted yet.
func (h *History) CompactedNote() string { return h.compactedNote }

// UncompactedItems returns the steps that have not yet been folded into
// CompactedNote — the ones the message builder still renders in full.
func (h *History) UncompactedItems() []HistoryItem {
	return h.items[h.compactedUpto:]
}

// ShortTermSummary renders a terse digest of the last n steps' extracted
// long-term-memory notes, most recent last — the builder's "Memory:" line
// (§4.7), distinct from CompactedNote which folds much older steps.
func (h *History) ShortTermSummary(n int) string {
	if n <= 0 {
		return ""
	}
	start := len(h.items) - n
	if start < h.compactedUpto {
		start = h.compactedUpto
	}
	if start < 0 {
		start = 0
	}
	var notes []string
	for _, it := range h.items[start:] {
		for _, r := range it.ActionResults {
			if r != nil && r.LongTermMemory != "" {
				notes = append(notes, r.LongTermMemory)
			}
		}
	}
	return strings.Join(notes, "; ")
}

// DefaultSummarize renders a terse one-line-per-step digest, used as the
// default compaction summarizer when the caller doesn't supply its own.
func DefaultSummarize(items []HistoryItem) string {
	var b strings.Builder
	b.WriteString("Earlier steps (condensed):\n")
	for _, it := range items {
		status := "ok"
		if !it.Succeeded() {
			status = "failed"
		}
		names := make([]string, 0, len(it.ModelOutput.Actions))
		for _, a := range it.ModelOutput.Actions {
			names = append(names, a.Name)
		}
		fmt.Fprintf(&b, "- step %d [%s]: %s\n", it.StepIndex, status, strings.Join(names, ", "))
	}
	return b.String()
}

// tabsLine renders one short summary line per open tab, for the
// builder's "Open tabs" listing.
func tabsLine(tabs []browser.TabInfo) string {
	var b strings.Builder
	for _, t := range tabs {
		fmt.Fprintf(&b, "- [tab %d] %s (%s)\n", t.PageID, t.Title, t.URL)
	}
	return b.String()
}
