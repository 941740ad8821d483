package actions

import (
	"fmt"

	"github.com/agentrt/browseragent/agenterr"
	"github.com/agentrt/browseragent/redact"
)

// Controller executes action invocations against a frozen Registry,
// applying the validate → domain-filter → redact → invoke → normalize
// pipeline (§4.5) uniformly regardless of which handler runs.
type Controller struct {
	registry *Registry
}

// NewController builds a Controller over registry, which must already
// be frozen.
func NewController(registry *Registry) *Controller {
	return &Controller{registry: registry}
}

// Execute runs one action invocation end to end.
func (c *Controller) Execute(actx *Context, name string, rawParams map[string]any) (*Result, error) {
	d := c.registry.Lookup(name)
	if d == nil {
		return nil, agenterr.New(agenterr.CodeUnknownAction, fmt.Sprintf("unknown action %q", name), nil)
	}

	if err := validateParams(d, rawParams); err != nil {
		return nil, err
	}

	if actx.Session != nil {
		currentURL := actx.Session.CurrentURL()
		if !domainAllowed(d.AllowedDomains, currentURL) {
			return nil, agenterr.New(agenterr.CodeDomainBlocked,
				fmt.Sprintf("action %q is not allowed on %s", name, currentURL), nil)
		}
	}

	redacted := redactStringParams(actx, rawParams)

	result, err := d.Handler(actx, redacted)
	if err != nil {
		var detail *ErrorDetail
		if ae, ok := err.(*agenterr.Error); ok {
			detail = &ErrorDetail{Code: ae.Code, Message: ae.Message}
		} else {
			detail = &ErrorDetail{Code: agenterr.CodeInvalidParams, Message: err.Error()}
		}
		return &Result{Error: detail}, nil
	}
	if result == nil {
		result = &Result{Success: true}
	}
	return result, nil
}

// redactStringParams substitutes sensitive-data placeholders with their
// real values (outbound direction) on every string-valued parameter,
// scoped to the session's current host.
func redactStringParams(actx *Context, raw map[string]any) map[string]any {
	if actx.SensitiveData == nil || actx.Session == nil {
		return raw
	}
	host := redact.HostOf(actx.Session.CurrentURL())
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = actx.SensitiveData.Outbound(host, s)
		} else {
			out[k] = v
		}
	}
	return out
}
