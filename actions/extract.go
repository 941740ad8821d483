package actions

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	readability "github.com/go-shiori/go-readability"

	"github.com/agentrt/browseragent/agenterr"
)

// markdownConverter mirrors the teacher's LLM-optimized converter setup:
// base plugin strips script/style/noise tags, commonmark renders
// standard markdown, table plugin keeps tabular structure with minimal
// cell padding to save tokens.
var markdownConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal)),
	),
)

// extractTruncateLimit and the head/tail split match the teacher's
// cleaner pipeline's truncation policy, adapted for the extraction LLM
// call instead of the general-purpose cleaner output.
const (
	extractTruncateLimit = 30000
	extractHeadShare     = 0.7 // 70% of the budget from the head, 30% from the tail
	extractPersistMinLen = 600
)

// PageExtractionLLM is the minimal chat interface extract_structured_data
// needs, declared here so actions does not import chatmodel. A
// chatmodel.Model does not implement it: that interface has only Invoke,
// and chatmodel.Complete is a package function, not a method.
type PageExtractionLLM interface {
	Complete(prompt string) (string, error)
}

func registerExtract(r *Registry) error {
	return r.Register(&Declaration{
		Name:        "extract_structured_data",
		Description: "Extract the main content of the current page as structured data, using an auxiliary LLM call.",
		Params: []ParamField{
			{Name: "goal", Type: "string", Required: true},
		},
		Handler: func(actx *Context, params map[string]any) (*Result, error) {
			goal, _ := params["goal"].(string)

			state, err := actx.Session.GetBrowserStateWithRecovery(ctxOf(actx), false)
			if err != nil {
				return nil, err
			}

			htmlSrc := state.RawHTML
			article, err := readability.FromReader(strings.NewReader(htmlSrc), nil)
			content := htmlSrc
			if err == nil && strings.TrimSpace(article.Content) != "" {
				content = article.Content
			}

			markdown, err := markdownConverter.ConvertString(content)
			if err != nil {
				markdown = content
			}
			markdown = truncateHeadTail(markdown, extractTruncateLimit)

			llm, ok := actx.PageExtractionLLM.(PageExtractionLLM)
			if !ok || llm == nil {
				return nil, agenterr.New(agenterr.CodeInvalidParams, "no page extraction LLM configured", nil)
			}

			prompt := fmt.Sprintf("Goal: %s\n\nPage content:\n%s", goal, markdown)
			extracted, err := llm.Complete(prompt)
			if err != nil {
				return nil, agenterr.New(agenterr.CodeProviderError, "extraction LLM call failed", err)
			}

			result := &Result{ExtractedContent: extracted, Success: true}
			if len(extracted) > extractPersistMinLen && actx.FileSystem != nil {
				name := "extracted_content.md"
				_ = actx.FileSystem.Write(name, []byte(extracted))
				result.FilesToDisplay = []string{name}
			}
			return result, nil
		},
	})
}

// truncateHeadTail keeps the first extractHeadShare of limit from the
// start of s and the remainder from the end, matching the teacher's
// head/tail truncation policy for long documents handed to an LLM.
func truncateHeadTail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	headLen := int(float64(limit) * extractHeadShare)
	tailLen := limit - headLen
	return s[:headLen] + "\n...\n" + s[len(s)-tailLen:]
}
