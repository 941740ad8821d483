package agentloop

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/agentrt/browseragent/messages"
)

// thinkTagRe strips any <think>...</think> block, plus a stray trailing
// </think> left by providers that emit the closing tag without ever
// opening one, per §4.6 step 4.
var thinkTagRe = regexp.MustCompile(`(?s)<think>.*?</think>`)
var strayCloseThinkRe = regexp.MustCompile(`(?s)^.*?</think>`)

// stripThink removes think-block content from a raw completion before
// it's handed to the decision parser.
func stripThink(text string) string {
	text = thinkTagRe.ReplaceAllString(text, "")
	if strings.Contains(text, "</think>") && !strings.Contains(text, "<think>") {
		text = strayCloseThinkRe.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// decisionEnvelope is the JSON shape the system message instructs the
// model to emit: an optional thinking note plus the ordered action list.
type decisionEnvelope struct {
	Thinking string           `json:"thinking"`
	Actions  []actionEnvelope `json:"actions"`
}

type actionEnvelope struct {
	ActionName string         `json:"action_name"`
	Parameters map[string]any `json:"parameters"`
}

// ParseDecision extracts the model's chosen actions from its raw
// completion text (§4.6 steps 4-5). It accepts either the full envelope
// {"thinking": "...", "actions": [...]} or a bare JSON array of actions,
// tolerating a fenced code block (```json ... ```) around either shape.
func ParseDecision(raw string) (messages.ModelOutput, error) {
	text := stripThink(raw)
	text = unfence(text)

	var env decisionEnvelope
	if err := json.Unmarshal([]byte(text), &env); err == nil && len(env.Actions) > 0 {
		return toModelOutput(env.Thinking, env.Actions), nil
	}

	var bare []actionEnvelope
	if err := json.Unmarshal([]byte(text), &bare); err == nil && len(bare) > 0 {
		return toModelOutput("", bare), nil
	}

	return messages.ModelOutput{}, fmt.Errorf("agentloop: could not parse a decision from completion: %q", truncate(text, 200))
}

func toModelOutput(thinking string, actions []actionEnvelope) messages.ModelOutput {
	out := messages.ModelOutput{Thinking: thinking}
	for _, a := range actions {
		out.Actions = append(out.Actions, messages.ActionInvocation{Name: a.ActionName, Parameters: a.Parameters})
	}
	return out
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

func unfence(text string) string {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
