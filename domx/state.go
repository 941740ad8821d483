package domx

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// interactiveTags are elements treated as interactive by default, before
// the role/onclick/tabindex heuristics below are applied.
var interactiveTags = map[string]bool{
	"a": true, "button": true, "input": true, "select": true, "textarea": true,
	"option": true, "label": true, "summary": true,
}

// BuildState parses an HTML document into a DOMState, assigning
// HighlightIndex to every element judged interactive, in document order.
// Grounded on the teacher's goquery-based parsing in the cleaner package,
// adapted here to build a full node tree instead of extracting content.
func BuildState(htmlSrc string) (*DOMState, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
	if err != nil {
		return nil, fmt.Errorf("domx: parse html: %w", err)
	}

	var root *ElementNode
	selectorMap := make(map[int]*ElementNode)
	nextIndex := 0

	var build func(sel *goquery.Selection, parent *ElementNode) *ElementNode
	build = func(sel *goquery.Selection, parent *ElementNode) *ElementNode {
		node := sel.Get(0)
		tag := strings.ToLower(node.Data)

		attrs := make(map[string]string, len(node.Attr))
		for _, a := range node.Attr {
			attrs[a.Key] = a.Val
		}

		text := strings.TrimSpace(sel.Clone().Children().Remove().End().Text())

		el := &ElementNode{
			Tag:            tag,
			Attributes:     attrs,
			Text:           text,
			Visible:        !isHiddenByMarkup(attrs),
			Parent:         parent,
			HighlightIndex: -1,
		}
		el.XPath = computeXPath(el)

		if el.Visible && isInteractive(tag, attrs) {
			el.Interactive = true
			el.HighlightIndex = nextIndex
			selectorMap[nextIndex] = el
			nextIndex++
		}

		sel.Contents().Each(func(_ int, child *goquery.Selection) {
			if child.Get(0) == nil || child.Get(0).Type != html.ElementNode {
				return
			}
			childNode := build(child, el)
			el.Children = append(el.Children, childNode)
		})

		return el
	}

	if body := doc.Find("html").First(); body.Length() > 0 {
		root = build(body, nil)
	} else if body := doc.Find("body").First(); body.Length() > 0 {
		root = build(body, nil)
	} else {
		return nil, fmt.Errorf("domx: no root element found")
	}

	return &DOMState{Root: root, SelectorMap: selectorMap}, nil
}

func isHiddenByMarkup(attrs map[string]string) bool {
	if _, ok := attrs["hidden"]; ok {
		return true
	}
	style := strings.ToLower(attrs["style"])
	return strings.Contains(style, "display:none") || strings.Contains(style, "display: none") ||
		strings.Contains(style, "visibility:hidden") || strings.Contains(style, "visibility: hidden")
}

func isInteractive(tag string, attrs map[string]string) bool {
	if interactiveTags[tag] {
		if tag == "input" && attrs["type"] == "hidden" {
			return false
		}
		return true
	}
	if role, ok := attrs["role"]; ok {
		switch role {
		case "button", "link", "checkbox", "radio", "tab", "menuitem", "option":
			return true
		}
	}
	if _, ok := attrs["onclick"]; ok {
		return true
	}
	if tabindex, ok := attrs["tabindex"]; ok && tabindex != "-1" {
		return true
	}
	return false
}

// computeXPath builds a simple tag-indexed xpath by walking up to root.
func computeXPath(n *ElementNode) string {
	var segments []string
	for cur := n; cur != nil; cur = cur.Parent {
		idx := 1
		if cur.Parent != nil {
			for _, sib := range cur.Parent.Children {
				if sib == cur {
					break
				}
				if sib.Tag == cur.Tag {
					idx++
				}
			}
		}
		segments = append([]string{fmt.Sprintf("%s[%d]", cur.Tag, idx)}, segments...)
	}
	return "/" + strings.Join(segments, "/")
}
