package domx

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// dynamicAttrTokens are class tokens known to reflect transient UI state
// rather than identity, stripped before computing StableHash.
var dynamicAttrTokens = map[string]bool{
	"focus": true, "active": true, "hover": true, "selected": true, "expanded": true,
}

// dynamicIDPrefixes match framework-generated id attributes (e.g. Ember's
// ember123, or React-style id-4821) that are unstable across renders.
var dynamicIDPrefixes = []string{"ember", "id-"}

// ExactHash identifies a node by its branch path, xpath, and full sorted
// attribute set. Two snapshots of an unchanged page produce identical
// ExactHash values for the same element; any attribute or position change
// breaks the match, which is why StableHash exists as a fallback.
func ExactHash(n *ElementNode) string {
	return hashOf(n, n.Attributes)
}

// StableHash is like ExactHash but first strips attributes that are
// known to reflect transient state (focus/hover/etc. class tokens, and
// framework-generated ids) rather than identity, so the hash survives
// cosmetic re-renders that ExactHash would miss.
func StableHash(n *ElementNode) string {
	return hashOf(n, stableAttributes(n.Attributes))
}

func hashOf(n *ElementNode, attrs map[string]string) string {
	var b strings.Builder
	b.WriteString(n.Tag)
	b.WriteByte('\x00')
	b.WriteString(n.BranchPath())
	b.WriteByte('\x00')
	b.WriteString(n.XPath)
	b.WriteByte('\x00')

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s;", k, attrs[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

// stableAttributes returns a copy of attrs with dynamic class tokens
// removed from "class" and framework-generated "id" values dropped
// entirely (per the conservative default adopted for the open question
// of which attributes count as dynamic).
func stableAttributes(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		switch k {
		case "class":
			tokens := strings.Fields(v)
			kept := tokens[:0]
			for _, t := range tokens {
				if !dynamicAttrTokens[t] {
					kept = append(kept, t)
				}
			}
			if len(kept) > 0 {
				out[k] = strings.Join(kept, " ")
			}
		case "id":
			if !hasDynamicIDPrefix(v) {
				out[k] = v
			}
		default:
			out[k] = v
		}
	}
	return out
}

func hasDynamicIDPrefix(id string) bool {
	for _, p := range dynamicIDPrefixes {
		if strings.HasPrefix(id, p) {
			return true
		}
	}
	return false
}
