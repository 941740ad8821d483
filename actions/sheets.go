package actions

import (
	"fmt"
	"strings"

	"github.com/agentrt/browseragent/agenterr"
	"github.com/agentrt/browseragent/browser"
)

// sheetsHost restricts the Google Sheets helpers to the one domain they
// make sense on; they manipulate the A1-style range box and clipboard
// shortcuts that only exist in that UI.
const sheetsHost = "docs.google.com"

func registerSheetsHelpers(r *Registry) error {
	if err := r.Register(selectCellOrRangeAction()); err != nil {
		return err
	}
	if err := r.Register(getRangeContentsAction()); err != nil {
		return err
	}
	if err := r.Register(updateCellContentsAction()); err != nil {
		return err
	}
	return r.Register(clearRangeContentsAction())
}

func selectCellOrRangeAction() *Declaration {
	return &Declaration{
		Name:           "select_cell_or_range",
		Description:    "Select a cell or A1 range in the open Google Sheet via the name box.",
		AllowedDomains: []string{sheetsHost},
		Params: []ParamField{
			{Name: "range", Type: "string", Required: true},
		},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			rng, _ := params["range"].(string)
			page, err := currentPage(actx)
			if err != nil {
				return nil, err
			}
			ctx := ctxOf(actx)
			if err := page.Click(ctx, "#t-name-box"); err != nil {
				return nil, agenterr.New(agenterr.CodeInvalidParams, "could not open the name box", err)
			}
			if err := page.Fill(ctx, "#t-name-box", rng); err != nil {
				return nil, agenterr.New(agenterr.CodeInvalidParams, "could not type into the name box", err)
			}
			if err := page.PressKeys(ctx, "Enter"); err != nil {
				return nil, agenterr.New(agenterr.CodeInvalidParams, "could not confirm the range selection", err)
			}
			return &Result{ExtractedContent: "selected range " + rng, Success: true}, nil
		},
	}
}

func getRangeContentsAction() *Declaration {
	return &Declaration{
		Name:           "get_range_contents",
		Description:    "Return the formula-bar text of the currently selected cell; other cells of a multi-cell range are not returned.",
		AllowedDomains: []string{sheetsHost},
		Params:         nil,
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			page, err := currentPage(actx)
			if err != nil {
				return nil, err
			}
			raw, err := page.Evaluate(ctxOf(actx), sheetsReadClipboardJS)
			if err != nil {
				return nil, agenterr.New(agenterr.CodeProviderError, "could not read the selected range", err)
			}
			return &Result{ExtractedContent: strings.TrimSpace(raw), Success: true}, nil
		},
	}
}

func updateCellContentsAction() *Declaration {
	return &Declaration{
		Name:           "update_cell_contents",
		Description:    "Type text into the currently selected cell or range, overwriting its contents.",
		AllowedDomains: []string{sheetsHost},
		Params: []ParamField{
			{Name: "text", Type: "string", Required: true},
		},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			text, _ := params["text"].(string)
			page, err := currentPage(actx)
			if err != nil {
				return nil, err
			}
			ctx := ctxOf(actx)
			if err := page.PressKeys(ctx, text); err != nil {
				return nil, agenterr.New(agenterr.CodeInvalidParams, "could not type the replacement value", err)
			}
			if err := page.PressKeys(ctx, "Enter"); err != nil {
				return nil, agenterr.New(agenterr.CodeInvalidParams, "could not confirm the new cell value", err)
			}
			return &Result{ExtractedContent: fmt.Sprintf("wrote %d characters", len(text)), Success: true}, nil
		},
	}
}

func clearRangeContentsAction() *Declaration {
	return &Declaration{
		Name:           "clear_range_contents",
		Description:    "Clear the currently selected range's contents.",
		AllowedDomains: []string{sheetsHost},
		Params:         nil,
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			page, err := currentPage(actx)
			if err != nil {
				return nil, err
			}
			if err := page.PressKeys(ctxOf(actx), "Delete"); err != nil {
				return nil, agenterr.New(agenterr.CodeInvalidParams, "could not clear the range", err)
			}
			return &Result{ExtractedContent: "cleared range", Success: true}, nil
		},
	}
}

// currentPage fetches the active tab's PageHandle directly, for actions
// that need page interaction beyond what Session's navigation/state
// helpers expose.
func currentPage(actx *Context) (browser.PageHandle, error) {
	return actx.Session.CurrentPage()
}

// sheetsReadClipboardJS reads the DOM-rendered formula bar value as a
// low-friction stand-in for an actual clipboard round-trip, which would
// need OS clipboard permissions the sandboxed browser session doesn't
// grant.
const sheetsReadClipboardJS = `document.querySelector('.cell-input')?.innerText || ''`
