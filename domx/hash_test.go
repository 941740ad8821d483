package domx

import "testing"

func leaf(tag string, attrs map[string]string, parent *ElementNode) *ElementNode {
	n := &ElementNode{Tag: tag, Attributes: attrs, Parent: parent, HighlightIndex: -1}
	if parent != nil {
		parent.Children = append(parent.Children, n)
	}
	return n
}

func TestExactHashStableAcrossIdenticalSnapshots(t *testing.T) {
	root := leaf("div", map[string]string{"id": "app"}, nil)
	btn := leaf("button", map[string]string{"class": "cta", "id": "submit-btn"}, root)

	root2 := leaf("div", map[string]string{"id": "app"}, nil)
	btn2 := leaf("button", map[string]string{"class": "cta", "id": "submit-btn"}, root2)

	if ExactHash(btn) != ExactHash(btn2) {
		t.Fatal("ExactHash differs across identical snapshots")
	}
}

func TestStableHashIgnoresDynamicClassTokens(t *testing.T) {
	root := leaf("div", nil, nil)
	a := leaf("button", map[string]string{"class": "cta"}, root)

	root2 := leaf("div", nil, nil)
	b := leaf("button", map[string]string{"class": "cta active focus"}, root2)

	if StableHash(a) != StableHash(b) {
		t.Fatal("StableHash should ignore focus/active class tokens")
	}
	if ExactHash(a) == ExactHash(b) {
		t.Fatal("ExactHash should differ when class attribute differs")
	}
}

func TestStableHashIgnoresFrameworkGeneratedIDs(t *testing.T) {
	root := leaf("div", nil, nil)
	a := leaf("span", map[string]string{"id": "ember482"}, root)

	root2 := leaf("div", nil, nil)
	b := leaf("span", map[string]string{"id": "ember991"}, root2)

	if StableHash(a) != StableHash(b) {
		t.Fatal("StableHash should ignore ember-prefixed generated ids")
	}
}

func TestFindInTreeFallsBackToExactThenStable(t *testing.T) {
	root := leaf("div", map[string]string{"id": "app"}, nil)
	target := leaf("button", map[string]string{"class": "cta", "id": "submit"}, root)

	// Re-rendered tree: same structure, same identity attributes.
	root2 := leaf("div", map[string]string{"id": "app"}, nil)
	match := leaf("button", map[string]string{"class": "cta", "id": "submit"}, root2)

	found := FindInTree(root2, target)
	if found != match {
		t.Fatal("FindInTree did not locate the exact-hash match")
	}

	// Re-rendered tree where a dynamic class token changes the exact hash,
	// so only the stable hash still matches.
	root3 := leaf("div", map[string]string{"id": "app"}, nil)
	stableMatch := leaf("button", map[string]string{"class": "cta active", "id": "submit"}, root3)

	if ExactHash(stableMatch) == ExactHash(target) {
		t.Fatal("exact hashes unexpectedly equal; the stable fallback is not exercised")
	}
	if found := FindInTree(root3, target); found != stableMatch {
		t.Fatal("FindInTree did not fall back to the stable-hash match")
	}
}

func TestFindInTreeReturnsNilWhenNothingQualifies(t *testing.T) {
	root := leaf("div", map[string]string{"id": "app"}, nil)
	target := leaf("button", map[string]string{"id": "submit"}, root)

	other := leaf("div", map[string]string{"id": "completely-different"}, nil)
	leaf("a", map[string]string{"id": "link"}, other)

	if found := FindInTree(other, target); found != nil {
		t.Fatalf("expected no match, got %+v", found)
	}
}
