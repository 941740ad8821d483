package domx

import (
	"strings"

	"github.com/agentrt/browseragent/simhash"
)

// simhashMatchThreshold is the maximum Hamming distance between two
// subtree fingerprints still considered "the same element" by the
// structural-similarity fallback.
const simhashMatchThreshold = 3

// FindInTree relocates target within root across a re-rendered DOM. It
// first tries ExactHash, then StableHash; if both miss (cosmetic AND
// structural drift), it falls back to comparing SimHash structural
// fingerprints of same-tag candidate subtrees and returns the closest
// match within simhashMatchThreshold, or nil if none qualifies.
func FindInTree(root *ElementNode, target *ElementNode) *ElementNode {
	if found := findByHash(root, ExactHash(target), ExactHash); found != nil {
		return found
	}
	if found := findByHash(root, StableHash(target), StableHash); found != nil {
		return found
	}
	return findBySimhash(root, target)
}

func findByHash(root *ElementNode, want string, hashFn func(*ElementNode) string) *ElementNode {
	var found *ElementNode
	Walk(root, func(n *ElementNode) {
		if found != nil {
			return
		}
		if hashFn(n) == want {
			found = n
		}
	})
	return found
}

func findBySimhash(root *ElementNode, target *ElementNode) *ElementNode {
	targetFp := subtreeFingerprint(target)
	var best *ElementNode
	bestDist := simhashMatchThreshold + 1

	Walk(root, func(n *ElementNode) {
		if n.Tag != target.Tag {
			return
		}
		dist := simhash.Distance(targetFp, subtreeFingerprint(n))
		if dist < bestDist {
			bestDist = dist
			best = n
		}
	})
	if bestDist > simhashMatchThreshold {
		return nil
	}
	return best
}

// subtreeFingerprint renders a node's subtree back into a minimal tag
// sequence and hands it to simhash.FingerprintDOM, the same entry point
// used for HTTP-fetched-vs-JS-rendered comparisons, so the structural
// fallback here shares one fingerprinting implementation instead of a
// second copy of the shingle/hash logic.
func subtreeFingerprint(n *ElementNode) uint64 {
	return simhash.FingerprintDOM(renderTagSequence(n))
}

// renderTagSequence flattens a subtree into an open-tag-only HTML
// fragment, in the same pre-order Walk visits, so
// simhash.FingerprintDOM's tokenizer recovers the identical tag
// sequence it would from a real document.
func renderTagSequence(n *ElementNode) string {
	var sb strings.Builder
	Walk(n, func(c *ElementNode) {
		sb.WriteByte('<')
		sb.WriteString(c.Tag)
		sb.WriteByte('>')
	})
	return sb.String()
}
