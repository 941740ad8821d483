// Package actions implements the Action Registry & Controller (C5): a
// typed tool dispatcher exposing schema-validated actions to the agent,
// with domain filtering and sensitive-data redaction applied uniformly
// across every registered handler.
package actions

import (
	"context"

	"github.com/agentrt/browseragent/browser"
	"github.com/agentrt/browseragent/fsys"
	"github.com/agentrt/browseragent/redact"
)

// Context is passed to every action handler. PageExtractionLLM is the
// model used by extract_structured_data; it's typed as `any` here to
// avoid an import cycle (actions -> chatmodel -> actions would otherwise
// loop if chatmodel ever referenced action results). The handler uses it
// only if it implements PageExtractionLLM (extract.go), which a bare
// chatmodel.Model does not.
type Context struct {
	Session           *browser.Session
	PageExtractionLLM any
	SensitiveData     *redact.Map
	AvailableFiles    []string
	FileSystem        *fsys.FileSystem
	Ctx               context.Context
}

// ParamField describes one parameter of an action's schema.
type ParamField struct {
	Name     string
	Type     string // "string", "int", "float", "bool", "object"
	Required bool
}

// Declaration is a registered action: its name, description, parameter
// schema, optional domain restriction, and handler.
type Declaration struct {
	Name            string
	Description     string
	Params          []ParamField
	AllowedDomains  []string // empty means "no restriction"
	Handler         func(ctx *Context, params map[string]any) (*Result, error)
}

// Result is the normalized outcome of one action invocation: a string
// becomes ExtractedContent, a structured value is JSON-serialized into
// it, and a terminal done action sets IsDone.
//
// LongTermMemory, OmitFromMemory, ExtractOnce, and Attachments mirror
// the Action Result data model's long_term_memory, include_in_memory,
// include_extracted_content_only_once, and attachments fields. The
// zero value of each is the common case (include the content, keep it
// across steps, no attachments), so ordinary handlers that never touch
// these fields behave exactly as before.
type Result struct {
	ExtractedContent string
	LongTermMemory   string
	IsDone           bool
	Success          bool
	OmitFromMemory   bool
	ExtractOnce      bool
	FilesToDisplay   []string
	Attachments      []string
	Error            *ErrorDetail
}

// ErrorDetail is the wire-facing shape of an action failure.
type ErrorDetail struct {
	Code    string
	Message string
}
