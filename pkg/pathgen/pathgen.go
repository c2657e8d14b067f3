// Package pathgen generates candidate locator expressions for a
// fingerprint, ranked by per-strategy confidence that adapts to
// resolution feedback over time.
package pathgen

import (
	"fmt"
	"sort"

	"github.com/devicelab-dev/tapresolver/pkg/fingerprint"
	"github.com/devicelab-dev/tapresolver/pkg/locator"
)

// Strategy identifies the family a generated locator belongs to.
type Strategy int

const (
	StrategyResourceID Strategy = iota
	StrategyContentDesc
	StrategyText
	StrategyClassHierarchy
	StrategyComposite
	StrategyFallback
)

// String returns the strategy name used in logs and persisted ratings.
func (s Strategy) String() string {
	switch s {
	case StrategyResourceID:
		return "resource_id"
	case StrategyContentDesc:
		return "content_desc"
	case StrategyText:
		return "text"
	case StrategyClassHierarchy:
		return "class_hierarchy"
	case StrategyComposite:
		return "composite"
	case StrategyFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

func strategyFromName(name string) (Strategy, bool) {
	switch name {
	case "resource_id":
		return StrategyResourceID, true
	case "content_desc":
		return StrategyContentDesc, true
	case "text":
		return StrategyText, true
	case "class_hierarchy":
		return StrategyClassHierarchy, true
	case "composite":
		return StrategyComposite, true
	case "fallback":
		return StrategyFallback, true
	}
	return 0, false
}

// PathCandidate is a generated locator with its effective confidence.
type PathCandidate struct {
	Expr       string
	Strategy   Strategy
	Confidence float64
}

// Generator produces ranked locator candidates from a fingerprint.
type Generator struct {
	store *ConfidenceStore
}

// NewGenerator creates a generator backed by the given store. A nil
// store gets a fresh one with default ratings.
func NewGenerator(store *ConfidenceStore) *Generator {
	if store == nil {
		store = NewConfidenceStore()
	}
	return &Generator{store: store}
}

// Store exposes the backing confidence store for feedback and
// persistence.
func (g *Generator) Store() *ConfidenceStore { return g.store }

// Generate builds every locator the fingerprint supports, ordered by
// descending confidence. siblingIndex is the element's 1-based position
// among same-class siblings when known, or 0 to skip indexed variants.
// Malformed expressions are dropped rather than returned.
func (g *Generator) Generate(fp *fingerprint.Fingerprint, siblingIndex int) []PathCandidate {
	var out []PathCandidate
	add := func(s Strategy, factor float64, expr string) {
		if locator.Validate(expr) != nil {
			return
		}
		out = append(out, PathCandidate{
			Expr:       expr,
			Strategy:   s,
			Confidence: g.store.Get(s) * factor,
		})
	}

	if fp.HasResourceID() {
		add(StrategyResourceID, 1.0, fmt.Sprintf(`//*[@resource-id=%q]`, fp.ResourceID))
		add(StrategyResourceID, 0.95, fmt.Sprintf(`(//*[@resource-id=%q])[1]`, fp.ResourceID))
	}

	if fp.HasContentDesc() {
		add(StrategyContentDesc, 1.0, fmt.Sprintf(`//*[@content-desc=%q]`, fp.ContentDesc))
		if len([]rune(fp.ContentDesc)) > 3 {
			add(StrategyContentDesc, 0.8, fmt.Sprintf(`//*[contains(@content-desc, %q)]`, fp.ContentDesc))
		}
	}

	if fp.HasText() {
		add(StrategyText, 1.0, fmt.Sprintf(`//*[@text=%q]`, fp.Text))
		add(StrategyText, 0.95, fmt.Sprintf(`//*[normalize-space(@text)=%q]`, fp.Text))
		if len([]rune(fp.Text)) > 5 {
			add(StrategyText, 0.7, fmt.Sprintf(`//*[contains(@text, %q)]`, fp.Text))
		}
	}

	if fp.ClassName != "" {
		add(StrategyClassHierarchy, 0.6, fmt.Sprintf(`//%s`, fp.ClassName))
		if siblingIndex > 0 {
			add(StrategyClassHierarchy, 0.8, fmt.Sprintf(`(//%s)[%d]`, fp.ClassName, siblingIndex))
		}
	}

	if fp.ClassName != "" {
		if fp.HasResourceID() {
			add(StrategyComposite, 1.0, fmt.Sprintf(`//%s[@resource-id=%q]`, fp.ClassName, fp.ResourceID))
		}
		if fp.HasContentDesc() {
			add(StrategyComposite, 0.95, fmt.Sprintf(`//%s[@content-desc=%q]`, fp.ClassName, fp.ContentDesc))
		}
		if fp.HasText() {
			add(StrategyComposite, 0.9, fmt.Sprintf(`//%s[@text=%q]`, fp.ClassName, fp.Text))
		}
	}

	if fp.Bounds != "" {
		add(StrategyFallback, 0.5, fmt.Sprintf(`//*[@bounds=%q]`, fp.Bounds))
		if fp.ClassName != "" {
			add(StrategyFallback, 0.7, fmt.Sprintf(`//%s[@bounds=%q]`, fp.ClassName, fp.Bounds))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// GenerateBest returns the highest-confidence locator the fingerprint
// supports. The second return is false when nothing can be generated.
func (g *Generator) GenerateBest(fp *fingerprint.Fingerprint, siblingIndex int) (PathCandidate, bool) {
	cands := g.Generate(fp, siblingIndex)
	if len(cands) == 0 {
		return PathCandidate{}, false
	}
	return cands[0], true
}
