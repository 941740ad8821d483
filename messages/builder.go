package messages

import (
	"fmt"
	"strings"

	"github.com/agentrt/browseragent/actions"
	"github.com/agentrt/browseragent/browser"
	"github.com/agentrt/browseragent/chatmodel"
	"github.com/agentrt/browseragent/domx"
	"github.com/agentrt/browseragent/fsys"
	"github.com/agentrt/browseragent/redact"
)

// VisionDetail selects how much instruction the system message gives
// about interpreting the attached screenshot, when one is included.
type VisionDetail string

const (
	VisionOff  VisionDetail = ""
	VisionLow  VisionDetail = "low"
	VisionHigh VisionDetail = "high"
)

// Options configures one Builder instance; it is set once at agent
// construction time and does not vary per step.
type Options struct {
	// Task is the natural-language goal, included in every user turn.
	Task string

	// ActionSet lists the registered actions for the system message's
	// "allowed action names" + schema listing.
	ActionSet []*actions.Declaration

	// RecentEventsWindow bounds how many recent bus-derived event
	// descriptions are rendered (§4.7).
	RecentEventsWindow int

	// IncludeScreenshot attaches the step's screenshot as an image part
	// when the state snapshot carries one.
	IncludeScreenshot bool
	Vision            VisionDetail

	// OutputSchemaName, if non-empty, tells the system message the done
	// action's data field must conform to a configured structured
	// output schema rather than a free-text summary.
	OutputSchemaName string
}

// Builder assembles the [system, user?, ...conversation] message list
// for one step from a browser state summary, the running history, the
// file system sandbox, and the sensitive-data map (for inbound
// redaction of anything the model would otherwise see in the clear).
type Builder struct {
	opts          Options
	sensitiveData *redact.Map
}

// NewBuilder creates a Builder. sensitiveData may be nil.
func NewBuilder(opts Options, sensitiveData *redact.Map) *Builder {
	return &Builder{opts: opts, sensitiveData: sensitiveData}
}

// StepInput bundles everything the builder needs for one step beyond
// its fixed Options and the running History.
type StepInput struct {
	State            *browser.BrowserStateSummary
	History          *History
	FileSystem       *fsys.FileSystem
	ShortTermMemory  string
	ClosedPopups     []string
	PendingNetwork   []string
	RecentEventNames []string
}

// Build renders the full message list for the next step.
func (b *Builder) Build(in StepInput) []chatmodel.Message {
	msgs := make([]chatmodel.Message, 0, 3)
	msgs = append(msgs, b.systemMessage())

	if note := in.History.CompactedNote(); note != "" {
		msgs = append(msgs, chatmodel.Message{
			Role:    chatmodel.RoleAssistant,
			Content: []chatmodel.Part{chatmodel.TextPart(b.redactInbound(in.State, note))},
		})
	}

	for _, item := range in.History.UncompactedItems() {
		msgs = append(msgs, b.historyTurn(item)...)
	}

	msgs = append(msgs, b.userMessage(in))
	return msgs
}

func (b *Builder) systemMessage() chatmodel.Message {
	var sb strings.Builder
	sb.WriteString("You are a browser automation agent. Given a task, observe the page, ")
	sb.WriteString("choose one or more actions per step, and call `done` when the task is ")
	sb.WriteString("complete or has failed past recovery.\n\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Refer to interactive elements only by their [index].\n")
	sb.WriteString("- Emit a JSON list of {action_name, parameters} objects per step.\n")
	sb.WriteString("- Stop emitting further actions in the same step once one fails or `done` is called.\n")

	if b.opts.OutputSchemaName != "" {
		fmt.Fprintf(&sb, "- The `done` action's `data` field must conform to the %q schema.\n", b.opts.OutputSchemaName)
	}
	if b.opts.Vision != VisionOff {
		sb.WriteString("- A screenshot of the current viewport is attached; use it together with the element listing, never in place of it.\n")
	}

	sb.WriteString("\nAvailable actions:\n")
	for _, d := range b.opts.ActionSet {
		fmt.Fprintf(&sb, "- %s: %s\n", d.Name, d.Description)
	}

	return chatmodel.Message{
		Role:      chatmodel.RoleSystem,
		Content:   []chatmodel.Part{chatmodel.TextPart(sb.String())},
		Cacheable: true,
	}
}

// historyTurn renders one already-recorded step as an assistant turn
// (what it decided) plus a user turn (what executing it produced),
// honoring each result's OmitFromMemory/LongTermMemory fields. ExtractOnce
// is not acted on: such content is replayed on every rebuild like any
// other result.
func (b *Builder) historyTurn(item HistoryItem) []chatmodel.Message {
	var assistant strings.Builder
	if item.ModelOutput.Thinking != "" {
		assistant.WriteString(item.ModelOutput.Thinking + "\n")
	}
	for _, a := range item.ModelOutput.Actions {
		fmt.Fprintf(&assistant, "-> %s(%v)\n", a.Name, a.Parameters)
	}

	var result strings.Builder
	for i, r := range item.ActionResults {
		if r == nil || r.OmitFromMemory {
			continue
		}
		content := r.ExtractedContent
		if r.LongTermMemory != "" {
			content = r.LongTermMemory
		}
		if content == "" {
			continue
		}
		fmt.Fprintf(&result, "[result %d] %s\n", i, content)
		if r.ExtractOnce {
			// No special handling: the content above is kept on every
			// rebuild of this history, not only the first rendering.
		}
	}
	if result.Len() == 0 {
		return []chatmodel.Message{
			{Role: chatmodel.RoleAssistant, Content: []chatmodel.Part{chatmodel.TextPart(assistant.String())}},
		}
	}
	return []chatmodel.Message{
		{Role: chatmodel.RoleAssistant, Content: []chatmodel.Part{chatmodel.TextPart(assistant.String())}},
		{Role: chatmodel.RoleUser, Content: []chatmodel.Part{chatmodel.TextPart(result.String())}},
	}
}

func (b *Builder) userMessage(in StepInput) chatmodel.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n", b.opts.Task)
	if in.ShortTermMemory != "" {
		fmt.Fprintf(&sb, "Memory: %s\n", in.ShortTermMemory)
	}

	if in.State != nil {
		fmt.Fprintf(&sb, "\nCurrent page: %s (%q)\n", in.State.URL, in.State.Title)
		if len(in.State.Tabs) > 1 {
			sb.WriteString("Open tabs:\n")
			sb.WriteString(tabsLine(in.State.Tabs))
		}
		if in.State.PixelsAbove > 0 || in.State.PixelsBelow > 0 {
			fmt.Fprintf(&sb, "Scroll position: %d px above, %d px below viewport\n", in.State.PixelsAbove, in.State.PixelsBelow)
		}
		if in.State.ElementTree != nil {
			sb.WriteString("\nInteractive elements:\n")
			sb.WriteString(domx.RenderInteractiveElements(in.State.ElementTree))
		}
		if len(in.State.PaginationButtons) > 0 {
			sb.WriteString("\nPagination controls:\n")
			for _, p := range in.State.PaginationButtons {
				fmt.Fprintf(&sb, "- [%d] %s (%s)\n", p.Node.HighlightIndex, p.Node.Text, p.Direction)
			}
		}
		if len(in.State.BrowserErrors) > 0 {
			sb.WriteString("\nBrowser errors:\n")
			for _, e := range in.State.BrowserErrors {
				fmt.Fprintf(&sb, "- %s\n", e)
			}
		}
	}

	if len(in.RecentEventNames) > 0 {
		window := in.RecentEventNames
		if b.opts.RecentEventsWindow > 0 && len(window) > b.opts.RecentEventsWindow {
			window = window[len(window)-b.opts.RecentEventsWindow:]
		}
		fmt.Fprintf(&sb, "\nRecent events: %s\n", strings.Join(window, ", "))
	}
	if len(in.PendingNetwork) > 0 {
		fmt.Fprintf(&sb, "Pending network requests: %s\n", strings.Join(in.PendingNetwork, ", "))
	}
	if len(in.ClosedPopups) > 0 {
		fmt.Fprintf(&sb, "Closed pop-ups: %s\n", strings.Join(in.ClosedPopups, "; "))
	}

	if in.FileSystem != nil {
		if desc := in.FileSystem.Describe(); desc != "" {
			fmt.Fprintf(&sb, "\nFiles:\n%s", desc)
		}
	}

	parts := []chatmodel.Part{chatmodel.TextPart(b.redactInbound(in.State, sb.String()))}

	if b.opts.IncludeScreenshot && in.State != nil && len(in.State.Screenshot) > 0 {
		parts = append(parts, chatmodel.ImagePart(in.State.Screenshot, "image/png"))
	}

	return chatmodel.Message{Role: chatmodel.RoleUser, Content: parts}
}

// redactInbound replaces any real sensitive value with its placeholder
// before text reaches the model, scoped to the current page's host when
// known (falls back to scanning every domain entry otherwise, e.g. a
// rendering that spans several navigations).
func (b *Builder) redactInbound(state *browser.BrowserStateSummary, text string) string {
	if b.sensitiveData == nil {
		return text
	}
	if state != nil && state.URL != "" {
		return b.sensitiveData.Inbound(redact.HostOf(state.URL), text)
	}
	return b.sensitiveData.InboundAny(text)
}
