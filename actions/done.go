package actions

import (
	"encoding/json"

	"github.com/agentrt/browseragent/agenterr"
)

// DonePayload is the done action's parameter shape when no output schema
// is configured. Success/Text/FilesToDisplay carry the agent's final
// result to the caller.
type DonePayload struct {
	Success        bool     `json:"success"`
	Text           string   `json:"text"`
	FilesToDisplay []string `json:"files_to_display"`
}

// outputSchema, when non-nil, replaces done's "text" field with a "data"
// field whose shape must validate against the configured structured
// output (§4.5's "structured done" note). The handler calls it on the
// raw parameters, fails the action if it returns an error, and carries
// the JSON it returns through as the Result's ExtractedContent.
var outputSchema func(raw map[string]any) (json.RawMessage, error)

// SetStructuredOutput installs a validator used by the done action when
// the agent is configured with an output schema. Passing nil reverts to
// the plain {success, text, files_to_display} shape.
func SetStructuredOutput(validate func(raw map[string]any) (json.RawMessage, error)) {
	outputSchema = validate
}

func registerDoneAction() *Declaration {
	return &Declaration{
		Name:        "done",
		Description: "Signal the task is complete (or has failed past recovery), carrying the final result.",
		Params: []ParamField{
			{Name: "success", Type: "bool", Required: true},
			{Name: "text", Type: "string", Required: false},
			{Name: "data", Type: "object", Required: false},
			{Name: "files_to_display", Type: "object", Required: false},
		},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			success, _ := params["success"].(bool)
			var content string
			var files []string

			if outputSchema != nil {
				raw, err := outputSchema(params)
				if err != nil {
					return nil, agenterr.New(agenterr.CodeInvalidParams, "done: structured output failed validation", err)
				}
				content = string(raw)
			} else {
				content, _ = params["text"].(string)
			}

			if raw, ok := params["files_to_display"].([]any); ok {
				for _, f := range raw {
					if s, ok := f.(string); ok {
						files = append(files, s)
					}
				}
			}

			return &Result{
				IsDone:           true,
				Success:          success,
				ExtractedContent: content,
				FilesToDisplay:   files,
			}, nil
		},
	}
}

func registerDone(r *Registry) error {
	return r.Register(registerDoneAction())
}
