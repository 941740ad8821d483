package actions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentrt/browseragent/fsys"
)

// elementPage is a fakePage whose Content() carries real interactive
// markup, for actions that need a resolvable highlight index rather than
// just a focused-tab host.
type elementPage struct {
	fakePage
	html string
}

func newElementPage(html string) *elementPage {
	return &elementPage{fakePage: *newFakePage(), html: html}
}

func (p *elementPage) Content(ctx context.Context) (string, error) { return p.html, nil }

const elementPageHTML = `<html><body>
<button id="btn">Click me</button>
<input type="text" id="inp">
<select id="sel"><option>A</option><option>B</option></select>
<input type="file" id="upload">
</body></html>`

func newElementSession(t *testing.T) (*registryFixture, *elementPage) {
	t.Helper()
	page := newElementPage(elementPageHTML)
	s := newSessionWithPage(t, page)
	f := newRegistryFixture(t)
	f.actx.Session = s
	return f, page
}

// registryFixture bundles a frozen default Registry, Controller, and
// reusable Context for exercising individual action handlers.
type registryFixture struct {
	registry *Registry
	ctrl     *Controller
	actx     *Context
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	r := NewRegistry()
	if err := RegisterDefaults(r); err != nil {
		t.Fatalf("RegisterDefaults: %v", err)
	}
	r.Freeze()
	return &registryFixture{
		registry: r,
		ctrl:     NewController(r),
		actx:     &Context{FileSystem: fsys.New(), Ctx: context.Background()},
	}
}

func indexOf(t *testing.T, f *registryFixture, tag string) int {
	t.Helper()
	state, err := f.actx.Session.GetBrowserStateWithRecovery(context.Background(), false)
	if err != nil {
		t.Fatalf("GetBrowserStateWithRecovery: %v", err)
	}
	for i := 0; i < len(state.ElementTree.SelectorMap); i++ {
		if el, ok := state.ElementTree.SelectorMap[i]; ok && el.Tag == tag {
			return i
		}
	}
	t.Fatalf("no interactive %q element found", tag)
	return -1
}

func TestClickElementByIndexClicksTheResolvedElement(t *testing.T) {
	f, _ := newElementSession(t)
	idx := indexOf(t, f, "button")

	result, err := f.ctrl.Execute(f.actx, "click_element_by_index", map[string]any{"index": idx})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Error != nil {
		t.Fatalf("unexpected handler error: %v", result.Error)
	}
	if !result.Success {
		t.Fatal("expected a successful click result")
	}
}

func TestClickElementByIndexRejectsUnknownIndex(t *testing.T) {
	f, _ := newElementSession(t)
	result, err := f.ctrl.Execute(f.actx, "click_element_by_index", map[string]any{"index": 999})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Error == nil {
		t.Fatal("expected an error result for an out-of-range index")
	}
}

func TestInputTextFillsTheResolvedElement(t *testing.T) {
	f, _ := newElementSession(t)
	idx := indexOf(t, f, "input")

	result, err := f.ctrl.Execute(f.actx, "input_text", map[string]any{"index": idx, "text": "hello"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Error != nil {
		t.Fatalf("unexpected handler error: %v", result.Error)
	}
}

func TestSelectDropdownOptionRequiresASelectElement(t *testing.T) {
	f, _ := newElementSession(t)
	btnIdx := indexOf(t, f, "button")

	result, err := f.ctrl.Execute(f.actx, "select_dropdown_option", map[string]any{"index": btnIdx, "text": "A"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Error == nil {
		t.Fatal("expected an error selecting an option on a non-select element")
	}

	selIdx := indexOf(t, f, "select")
	result, err = f.ctrl.Execute(f.actx, "select_dropdown_option", map[string]any{"index": selIdx, "text": "A"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Error != nil {
		t.Fatalf("unexpected handler error: %v", result.Error)
	}
}

func TestScrollClampsPagesAndScrollsThePage(t *testing.T) {
	f, _ := newElementSession(t)
	result, err := f.ctrl.Execute(f.actx, "scroll", map[string]any{"pages": 100.0})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Error != nil {
		t.Fatalf("unexpected handler error: %v", result.Error)
	}
}

func TestSendKeysSendsToTheFocusedPage(t *testing.T) {
	f, _ := newElementSession(t)
	result, err := f.ctrl.Execute(f.actx, "send_keys", map[string]any{"keys": "Enter"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Error != nil {
		t.Fatalf("unexpected handler error: %v", result.Error)
	}
}

func TestUploadFileRejectsPathOutsideAvailableFiles(t *testing.T) {
	f, _ := newElementSession(t)
	path := filepath.Join(t.TempDir(), "resume.pdf")
	if err := os.WriteFile(path, []byte("pdf"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f.actx.AvailableFiles = []string{"/some/other/path.pdf"}
	idx := indexOf(t, f, "input")

	result, err := f.ctrl.Execute(f.actx, "upload_file", map[string]any{"index": idx, "path": path})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Error == nil {
		t.Fatal("expected an error for a path outside the available files allowlist")
	}
}

func TestUploadFileUploadsToTheResolvedFileInput(t *testing.T) {
	f, _ := newElementSession(t)
	path := filepath.Join(t.TempDir(), "resume.pdf")
	if err := os.WriteFile(path, []byte("pdf"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f.actx.AvailableFiles = []string{path}

	state, err := f.actx.Session.GetBrowserStateWithRecovery(context.Background(), false)
	if err != nil {
		t.Fatalf("GetBrowserStateWithRecovery: %v", err)
	}
	var fileIdx int = -1
	for i := 0; i < len(state.ElementTree.SelectorMap); i++ {
		if el, ok := state.ElementTree.SelectorMap[i]; ok && el.Tag == "input" && el.Attributes["type"] == "file" {
			fileIdx = i
		}
	}
	if fileIdx < 0 {
		t.Fatal("no file input found")
	}

	result, err := f.ctrl.Execute(f.actx, "upload_file", map[string]any{"index": fileIdx, "path": path})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Error != nil {
		t.Fatalf("unexpected handler error: %v", result.Error)
	}
}
