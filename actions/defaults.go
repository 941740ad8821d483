package actions

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/agentrt/browseragent/agenterr"
	"github.com/agentrt/browseragent/domx"
)

// maxScrollPages / viewportFrac bound the scroll action per §4.5:
// clamped to ±5 pages, 0.8x viewport each.
const (
	maxScrollPages  = 5
	viewportFrac    = 0.8
	defaultViewportH = 900
)

// RegisterDefaults installs the built-in action set into r.
func RegisterDefaults(r *Registry) error {
	decls := []*Declaration{
		searchGoogleAction(),
		goToURLAction(),
		goBackAction(),
		waitAction(),
		clickElementByIndexAction(),
		inputTextAction(),
		switchTabAction(),
		closeTabAction(),
		scrollAction(),
		scrollToTextAction(),
		sendKeysAction(),
		readFileAction(),
		writeFileAction(),
		replaceFileStrAction(),
		getDropdownOptionsAction(),
		selectDropdownOptionAction(),
	}
	for _, d := range decls {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	if err := registerExtract(r); err != nil {
		return err
	}
	if err := registerDone(r); err != nil {
		return err
	}
	if err := registerUploadFile(r); err != nil {
		return err
	}
	return registerSheetsHelpers(r)
}

func searchGoogleAction() *Declaration {
	return &Declaration{
		Name:        "search_google",
		Description: "Search Google for a query and navigate to the results page.",
		Params:      []ParamField{{Name: "query", Type: "string", Required: true}},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			query, _ := params["query"].(string)
			url := "https://www.google.com/search?q=" + strings.ReplaceAll(query, " ", "+")
			if err := actx.Session.NavigateTo(ctxOf(actx), url, 15*time.Second, false); err != nil {
				return nil, err
			}
			return &Result{ExtractedContent: "searched google for: " + query, Success: true}, nil
		},
	}
}

func goToURLAction() *Declaration {
	return &Declaration{
		Name:        "go_to_url",
		Description: "Navigate the current tab to a URL.",
		Params: []ParamField{
			{Name: "url", Type: "string", Required: true},
			{Name: "new_tab", Type: "bool", Required: false},
		},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			u, _ := params["url"].(string)
			newTab, _ := params["new_tab"].(bool)
			if err := actx.Session.NavigateTo(ctxOf(actx), u, 15*time.Second, newTab); err != nil {
				return nil, err
			}
			return &Result{ExtractedContent: "navigated to " + u, Success: true}, nil
		},
	}
}

func goBackAction() *Declaration {
	return &Declaration{
		Name:        "go_back",
		Description: "Go back in the current tab's navigation history.",
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			if err := actx.Session.GoBack(ctxOf(actx)); err != nil {
				return nil, err
			}
			return &Result{ExtractedContent: "went back", Success: true}, nil
		},
	}
}

func waitAction() *Declaration {
	return &Declaration{
		Name:        "wait",
		Description: "Wait for a number of seconds before the next action.",
		Params:      []ParamField{{Name: "seconds", Type: "float", Required: true}},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			secs, _ := params["seconds"].(float64)
			secs = math.Min(math.Max(secs, 0), 30)
			select {
			case <-time.After(time.Duration(secs * float64(time.Second))):
			case <-ctxOf(actx).Done():
				return nil, ctxOf(actx).Err()
			}
			return &Result{ExtractedContent: fmt.Sprintf("waited %.1fs", secs), Success: true}, nil
		},
	}
}

func clickElementByIndexAction() *Declaration {
	return &Declaration{
		Name:        "click_element_by_index",
		Description: "Click the interactive element with the given highlight index.",
		Params:      []ParamField{{Name: "index", Type: "int", Required: true}},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			idx, err := intParam(params, "index")
			if err != nil {
				return nil, err
			}
			state, err := actx.Session.GetBrowserStateWithRecovery(ctxOf(actx), false)
			if err != nil {
				return nil, err
			}
			el, ok := state.ElementTree.SelectorMap[idx]
			if !ok {
				return nil, agenterr.New(agenterr.CodeInvalidParams, fmt.Sprintf("no element at index %d", idx), nil)
			}
			page, err := currentPage(actx)
			if err != nil {
				return nil, err
			}
			if err := page.ClickXPath(ctxOf(actx), el.XPath); err != nil {
				return nil, agenterr.New(agenterr.CodeInvalidParams, fmt.Sprintf("could not click element %d", idx), err)
			}
			msg := fmt.Sprintf("clicked element %d", idx)
			if fresh, err := actx.Session.DiscoverNewTabs(ctxOf(actx)); err == nil && len(fresh) > 0 {
				msg += fmt.Sprintf(" (opened new tab: %s)", fresh[len(fresh)-1].URL)
			}
			return &Result{ExtractedContent: msg, Success: true}, nil
		},
	}
}

func inputTextAction() *Declaration {
	return &Declaration{
		Name:        "input_text",
		Description: "Type text into the interactive element with the given highlight index.",
		Params: []ParamField{
			{Name: "index", Type: "int", Required: true},
			{Name: "text", Type: "string", Required: true},
		},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			idx, err := intParam(params, "index")
			if err != nil {
				return nil, err
			}
			text, _ := params["text"].(string)
			state, err := actx.Session.GetBrowserStateWithRecovery(ctxOf(actx), false)
			if err != nil {
				return nil, err
			}
			el, ok := state.ElementTree.SelectorMap[idx]
			if !ok {
				return nil, agenterr.New(agenterr.CodeInvalidParams, fmt.Sprintf("no element at index %d", idx), nil)
			}
			page, err := currentPage(actx)
			if err != nil {
				return nil, err
			}
			if err := page.FillXPath(ctxOf(actx), el.XPath, text); err != nil {
				return nil, agenterr.New(agenterr.CodeInvalidParams, fmt.Sprintf("could not type into element %d", idx), err)
			}
			return &Result{ExtractedContent: fmt.Sprintf("typed into element %d (%d chars)", idx, len(text)), Success: true}, nil
		},
	}
}

func switchTabAction() *Declaration {
	return &Declaration{
		Name:        "switch_tab",
		Description: "Switch the active tab by index.",
		Params:      []ParamField{{Name: "index", Type: "int", Required: true}},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			idx, err := intParam(params, "index")
			if err != nil {
				return nil, err
			}
			if err := actx.Session.SwitchToTab(idx); err != nil {
				return nil, err
			}
			return &Result{ExtractedContent: fmt.Sprintf("switched to tab %d", idx), Success: true}, nil
		},
	}
}

func closeTabAction() *Declaration {
	return &Declaration{
		Name:        "close_tab",
		Description: "Close the tab at the given index.",
		Params:      []ParamField{{Name: "index", Type: "int", Required: true}},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			idx, err := intParam(params, "index")
			if err != nil {
				return nil, err
			}
			if err := actx.Session.CloseTab(ctxOf(actx), idx); err != nil {
				return nil, err
			}
			return &Result{ExtractedContent: fmt.Sprintf("closed tab %d", idx), Success: true}, nil
		},
	}
}

func scrollAction() *Declaration {
	return &Declaration{
		Name:        "scroll",
		Description: "Scroll the page up or down by a number of viewport pages (clamped to ±5).",
		Params: []ParamField{
			{Name: "pages", Type: "float", Required: true},
		},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			pages, _ := params["pages"].(float64)
			if pages > maxScrollPages {
				pages = maxScrollPages
			}
			if pages < -maxScrollPages {
				pages = -maxScrollPages
			}
			dy := int(pages * viewportFrac * defaultViewportH)
			page, err := currentPage(actx)
			if err != nil {
				return nil, err
			}
			if err := page.Scroll(ctxOf(actx), dy); err != nil {
				return nil, agenterr.New(agenterr.CodeInvalidParams, "could not scroll the page", err)
			}
			return &Result{ExtractedContent: fmt.Sprintf("scrolled %d px", dy), Success: true}, nil
		},
	}
}

func scrollToTextAction() *Declaration {
	return &Declaration{
		Name:        "scroll_to_text",
		Description: "Scroll until the given text is visible in the viewport.",
		Params:      []ParamField{{Name: "text", Type: "string", Required: true}},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			text, _ := params["text"].(string)
			state, err := actx.Session.GetBrowserStateWithRecovery(ctxOf(actx), false)
			if err != nil {
				return nil, err
			}
			var found *domx.ElementNode
			domx.Walk(state.ElementTree.Root, func(n *domx.ElementNode) {
				if found == nil && strings.Contains(n.Text, text) {
					found = n
				}
			})
			if found == nil {
				return nil, agenterr.New(agenterr.CodeInvalidParams, "text not found on page: "+text, nil)
			}
			page, err := currentPage(actx)
			if err != nil {
				return nil, err
			}
			js := fmt.Sprintf(`document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue?.scrollIntoView({block: "center"})`, found.XPath)
			if _, err := page.Evaluate(ctxOf(actx), js); err != nil {
				return nil, agenterr.New(agenterr.CodeInvalidParams, "could not scroll to text: "+text, err)
			}
			return &Result{ExtractedContent: "scrolled to text: " + text, Success: true}, nil
		},
	}
}

func sendKeysAction() *Declaration {
	return &Declaration{
		Name:        "send_keys",
		Description: "Send a raw key combination to the focused element (e.g. Enter, Escape, Control+A).",
		Params:      []ParamField{{Name: "keys", Type: "string", Required: true}},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			keys, _ := params["keys"].(string)
			page, err := currentPage(actx)
			if err != nil {
				return nil, err
			}
			if err := page.PressKeys(ctxOf(actx), keys); err != nil {
				return nil, agenterr.New(agenterr.CodeInvalidParams, "could not send keys: "+keys, err)
			}
			return &Result{ExtractedContent: "sent keys: " + keys, Success: true}, nil
		},
	}
}

func readFileAction() *Declaration {
	return &Declaration{
		Name:        "read_file",
		Description: "Read a file from the agent's sandboxed file system.",
		Params:      []ParamField{{Name: "name", Type: "string", Required: true}},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			name, _ := params["name"].(string)
			content, err := actx.FileSystem.Read(name)
			if err != nil {
				return nil, err
			}
			return &Result{ExtractedContent: string(content), Success: true}, nil
		},
	}
}

func writeFileAction() *Declaration {
	return &Declaration{
		Name:        "write_file",
		Description: "Write (creating or overwriting) a file in the agent's sandboxed file system.",
		Params: []ParamField{
			{Name: "name", Type: "string", Required: true},
			{Name: "content", Type: "string", Required: true},
		},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			name, _ := params["name"].(string)
			content, _ := params["content"].(string)
			if err := actx.FileSystem.Write(name, []byte(content)); err != nil {
				return nil, err
			}
			return &Result{ExtractedContent: "wrote " + name, Success: true, FilesToDisplay: []string{name}}, nil
		},
	}
}

func replaceFileStrAction() *Declaration {
	return &Declaration{
		Name:        "replace_file_str",
		Description: "Replace all occurrences of a string in a sandboxed file.",
		Params: []ParamField{
			{Name: "name", Type: "string", Required: true},
			{Name: "old", Type: "string", Required: true},
			{Name: "new", Type: "string", Required: true},
		},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			name, _ := params["name"].(string)
			oldStr, _ := params["old"].(string)
			newStr, _ := params["new"].(string)
			n, err := actx.FileSystem.ReplaceString(name, oldStr, newStr)
			if err != nil {
				return nil, err
			}
			return &Result{ExtractedContent: fmt.Sprintf("replaced %d occurrences in %s", n, name), Success: true}, nil
		},
	}
}

func getDropdownOptionsAction() *Declaration {
	return &Declaration{
		Name:        "get_dropdown_options",
		Description: "List the options of a <select> element by highlight index.",
		Params:      []ParamField{{Name: "index", Type: "int", Required: true}},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			idx, err := intParam(params, "index")
			if err != nil {
				return nil, err
			}
			state, err := actx.Session.GetBrowserStateWithRecovery(ctxOf(actx), false)
			if err != nil {
				return nil, err
			}
			el, ok := state.ElementTree.SelectorMap[idx]
			if !ok || el.Tag != "select" {
				return nil, agenterr.New(agenterr.CodeInvalidParams, fmt.Sprintf("element %d is not a select", idx), nil)
			}
			var opts []string
			for _, c := range el.Children {
				if c.Tag == "option" {
					opts = append(opts, c.Text)
				}
			}
			return &Result{ExtractedContent: strings.Join(opts, "\n"), Success: true}, nil
		},
	}
}

func selectDropdownOptionAction() *Declaration {
	return &Declaration{
		Name:        "select_dropdown_option",
		Description: "Select an option by visible text in a <select> element by highlight index.",
		Params: []ParamField{
			{Name: "index", Type: "int", Required: true},
			{Name: "text", Type: "string", Required: true},
		},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			idx, err := intParam(params, "index")
			if err != nil {
				return nil, err
			}
			text, _ := params["text"].(string)
			state, err := actx.Session.GetBrowserStateWithRecovery(ctxOf(actx), false)
			if err != nil {
				return nil, err
			}
			el, ok := state.ElementTree.SelectorMap[idx]
			if !ok || el.Tag != "select" {
				return nil, agenterr.New(agenterr.CodeInvalidParams, fmt.Sprintf("element %d is not a select", idx), nil)
			}
			page, err := currentPage(actx)
			if err != nil {
				return nil, err
			}
			if err := page.SelectXPath(ctxOf(actx), el.XPath, text); err != nil {
				return nil, agenterr.New(agenterr.CodeInvalidParams, fmt.Sprintf("could not select %q in element %d", text, idx), err)
			}
			return &Result{ExtractedContent: fmt.Sprintf("selected %q in element %d", text, idx), Success: true}, nil
		},
	}
}

func intParam(params map[string]any, name string) (int, error) {
	switch v := params[name].(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, agenterr.New(agenterr.CodeInvalidParams, fmt.Sprintf("parameter %q must be an integer", name), nil)
	}
}

func ctxOf(actx *Context) context.Context {
	if actx.Ctx != nil {
		return actx.Ctx
	}
	return context.Background()
}
