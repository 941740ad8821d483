package domx

import "strings"

// paginationWords are case-insensitive text/attribute fragments that
// indicate an element advances or rewinds a paged listing.
var paginationWords = []string{
	"next", "previous", "prev", "more results", "load more", "show more", "page",
}

// PaginationCandidate is an interactive element judged likely to be a
// pagination control, surfaced to the message builder as a shortcut so
// the model doesn't have to discover it by scrolling blind.
type PaginationCandidate struct {
	Node      *ElementNode
	Direction string // "next", "previous", or "" if ambiguous
}

// FindPaginationControls scans a DOMState's interactive elements for
// likely next/previous/load-more controls.
func FindPaginationControls(state *DOMState) []PaginationCandidate {
	var out []PaginationCandidate
	for _, n := range state.InteractiveElements() {
		text := strings.ToLower(n.Text)
		aria := strings.ToLower(n.Attributes["aria-label"])
		combined := text + " " + aria

		matched := false
		for _, w := range paginationWords {
			if strings.Contains(combined, w) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		dir := ""
		switch {
		case strings.Contains(combined, "next"), strings.Contains(combined, "more"):
			dir = "next"
		case strings.Contains(combined, "prev"):
			dir = "previous"
		}
		out = append(out, PaginationCandidate{Node: n, Direction: dir})
	}
	return out
}
