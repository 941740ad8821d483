package actions

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentrt/browseragent/agenterr"
)

func registerUploadFile(r *Registry) error {
	return r.Register(&Declaration{
		Name:        "upload_file",
		Description: "Upload a local file to a file input element by highlight index.",
		Params: []ParamField{
			{Name: "index", Type: "int", Required: true},
			{Name: "path", Type: "string", Required: true},
		},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			idx, err := intParam(params, "index")
			if err != nil {
				return nil, err
			}
			path, _ := params["path"].(string)
			if !pathAllowed(actx.AvailableFiles, path) {
				return nil, agenterr.New(agenterr.CodeInvalidParams,
					fmt.Sprintf("path %q is not in the available files list", path), nil)
			}
			if _, err := os.Stat(path); err != nil {
				return nil, agenterr.New(agenterr.CodeBadFilename, "upload path does not exist: "+path, err)
			}
			state, err := actx.Session.GetBrowserStateWithRecovery(ctxOf(actx), false)
			if err != nil {
				return nil, err
			}
			el, ok := state.ElementTree.SelectorMap[idx]
			if !ok || el.Tag != "input" || el.Attributes["type"] != "file" {
				return nil, agenterr.New(agenterr.CodeInvalidParams, fmt.Sprintf("element %d is not a file input", idx), nil)
			}
			page, err := currentPage(actx)
			if err != nil {
				return nil, err
			}
			if err := page.UploadXPath(ctxOf(actx), el.XPath, []string{path}); err != nil {
				return nil, agenterr.New(agenterr.CodeInvalidParams, fmt.Sprintf("could not upload to element %d", idx), err)
			}
			return &Result{ExtractedContent: "uploaded " + filepath.Base(path), Success: true}, nil
		},
	})
}

func pathAllowed(available []string, path string) bool {
	if len(available) == 0 {
		return true
	}
	for _, p := range available {
		if p == path {
			return true
		}
	}
	return false
}
