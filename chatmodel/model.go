// Package chatmodel defines the chat-model interface the agent loop
// consumes. It fixes the contract only; no provider adapter lives here.
package chatmodel

import "context"

// Role is a message's speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType distinguishes the kinds of content a message part can carry.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// Part is one piece of a message's content. Text parts set Text; image
// parts set ImageData (raw bytes, e.g. a PNG screenshot) and MimeType.
type Part struct {
	Type      PartType
	Text      string
	ImageData []byte
	MimeType  string
}

// TextPart is a convenience constructor for a text-only Part.
func TextPart(text string) Part { return Part{Type: PartText, Text: text} }

// ImagePart is a convenience constructor for an image Part.
func ImagePart(data []byte, mimeType string) Part {
	return Part{Type: PartImage, ImageData: data, MimeType: mimeType}
}

// Message is one turn in a conversation. Content holds one or more
// parts; a plain-text message has a single text part. Cacheable marks
// a message as a stable prefix candidate for provider-side prompt
// caching; ToolCalls carries any structured action calls the assistant
// emitted.
type Message struct {
	Role      Role
	Content   []Part
	Cacheable bool
	ToolCalls []ToolCall
}

// ToolCall is a single structured action invocation emitted by the model.
type ToolCall struct {
	Name string
	Args map[string]any
}

// NewTextMessage builds a single-part text message.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []Part{TextPart(text)}}
}

// RequestType hints at the call's purpose, letting a provider adapter
// pick a cheaper model or different retry policy for auxiliary calls
// (e.g. page extraction) versus the main step loop.
type RequestType string

const (
	RequestTypeStep    RequestType = "step"
	RequestTypeExtract RequestType = "extract"
	RequestTypeJudge   RequestType = "judge"
)

// InvokeOptions carries the out-of-band parameters ainvoke accepts
// beyond the message list itself.
type InvokeOptions struct {
	OutputFormat map[string]any
	SessionID    string
	RequestType  RequestType
}

// Usage reports token accounting for a single completion, when the
// provider returns it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// StopReason classifies why the model stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopMaxTokens StopReason = "max_tokens"
	StopToolUse   StopReason = "tool_use"
)

// Completion is ainvoke's return value.
type Completion struct {
	Text       string
	Usage      *Usage
	StopReason StopReason
}

// Model is the single method the agent loop needs from a chat
// provider. Implementations handle their own serialization, retry, and
// structured-output mapping; this package only fixes the shape.
type Model interface {
	Invoke(ctx context.Context, messages []Message, opts InvokeOptions) (*Completion, error)
}

// Complete is a minimal single-turn convenience wrapper: it sends prompt
// as one user message with RequestTypeExtract and returns the completion
// text. Being a function, it does not make a Model satisfy
// actions.PageExtractionLLM.
func Complete(ctx context.Context, m Model, prompt string) (string, error) {
	completion, err := m.Invoke(ctx, []Message{NewTextMessage(RoleUser, prompt)}, InvokeOptions{RequestType: RequestTypeExtract})
	if err != nil {
		return "", err
	}
	return completion.Text, nil
}
