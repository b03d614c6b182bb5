package bsave

import (
	"rulecore/internal/atomtab"
	"rulecore/internal/fact"
	"rulecore/internal/rule"
)

// Image is the in-memory snapshot WriteImage serializes and ReadImage
// reconstructs: every needed atom reachable from the interner's permanent
// roots and retained values, every defined template, every fact currently
// in the store, and every defined rule's metadata and RHS action.
//
// Fact- and instance-valued slots are not round-tripped: a saved slot
// holding a fact or instance address is written as void and a warning is
// logged on load, matching CLIPS bsave's own restriction that such
// references are runtime-only and must be rebuilt by re-asserting
// rather than by the binary image.
type Image struct {
	Interner  *atomtab.Interner
	Templates []*fact.Template
	Facts     []*fact.Fact
	Rules     []*rule.Rule
}

// BuildImage captures the current state of interner, store, and rules
// into an Image ready for WriteImage. It does not mutate any of them.
func BuildImage(interner *atomtab.Interner, templates []*fact.Template, store *fact.Store, rules []*rule.Rule) *Image {
	img := &Image{Interner: interner, Templates: templates, Rules: rules}
	store.IterateGlobal(func(f *fact.Fact) bool {
		img.Facts = append(img.Facts, f)
		return true
	})
	return img
}
