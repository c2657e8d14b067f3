// Package collector gathers candidate nodes from a tree snapshot for a
// fingerprint. It runs one of several collection strategies chosen from
// the shape of the fingerprint, then applies mode-specific post filters.
package collector

import (
	"sort"
	"strings"

	"github.com/devicelab-dev/tapresolver/pkg/core"
	"github.com/devicelab-dev/tapresolver/pkg/fingerprint"
	"github.com/devicelab-dev/tapresolver/pkg/locator"
	"github.com/devicelab-dev/tapresolver/pkg/uitree"
)

// Strategy names the collection path taken for a fingerprint.
type Strategy string

const (
	// StrategySelfAnchor matches on a resource id mined from the
	// locator, optionally narrowed by a descendant text predicate.
	StrategySelfAnchor Strategy = "self_anchor"
	// StrategyChildDriven finds containers through one of their child
	// labels, falling back to the element's own text.
	StrategyChildDriven Strategy = "child_driven"
	// StrategyContentDesc matches the content description exactly
	// after trimming.
	StrategyContentDesc Strategy = "content_desc"
	// StrategyTextOrDesc is the default tiered text scan.
	StrategyTextOrDesc Strategy = "text_or_desc"
)

// DetectStrategy picks the collection strategy for a fingerprint.
// Precedence: a resource-id locator wins, then a child-text locator,
// then a content description, then the default text scan.
func DetectStrategy(fp *fingerprint.Fingerprint) Strategy {
	if locator.ResourceID(fp.Locator) != "" {
		return StrategySelfAnchor
	}
	if locator.ChildText(fp.Locator) != "" {
		return StrategyChildDriven
	}
	if fp.HasContentDesc() {
		return StrategyContentDesc
	}
	return StrategyTextOrDesc
}

// Collect finds all candidate nodes for the fingerprint and reports
// which strategy produced them. The returned slice preserves document
// order; it is empty when nothing matched.
func Collect(tree *uitree.Tree, fp *fingerprint.Fingerprint) ([]*uitree.Node, Strategy) {
	strategy := DetectStrategy(fp)
	return CollectWith(tree, strategy, fp), strategy
}

// CollectWith runs one specific collection strategy, for callers that
// pin the strategy instead of detecting it from the fingerprint.
func CollectWith(tree *uitree.Tree, strategy Strategy, fp *fingerprint.Fingerprint) []*uitree.Node {
	switch strategy {
	case StrategySelfAnchor:
		return collectSelfAnchor(tree, fp)
	case StrategyChildDriven:
		return collectChildDriven(tree, fp)
	case StrategyContentDesc:
		return collectContentDesc(tree, fp)
	default:
		return collectTextOrDesc(tree, fp)
	}
}

func collectSelfAnchor(tree *uitree.Tree, fp *fingerprint.Fingerprint) []*uitree.Node {
	resourceID := locator.ResourceID(fp.Locator)
	if resourceID == "" {
		// Without a mined resource id there is nothing to anchor on;
		// degrade to the plain text/description scan.
		return collectTextOrDesc(tree, fp)
	}
	childText := locator.ChildText(fp.Locator)

	var out []*uitree.Node
	nodes := tree.Nodes()
	for i := range nodes {
		n := &nodes[i]
		if n.ResourceID != resourceID {
			continue
		}
		if childText != "" && !hasDescendantText(tree, n, childText) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func collectChildDriven(tree *uitree.Tree, fp *fingerprint.Fingerprint) []*uitree.Node {
	childText := locator.ChildText(fp.Locator)
	if childText == "" {
		return collectTextOrDesc(tree, fp)
	}

	// The label itself is the candidate: any node whose text or
	// description carries the mined child text.
	if out := scanTextOrDesc(tree, childText, childText); len(out) > 0 {
		return out
	}

	// The label is gone from the screen; fall back to the element's
	// own recorded anchors.
	return collectTextOrDesc(tree, fp)
}

func collectContentDesc(tree *uitree.Tree, fp *fingerprint.Fingerprint) []*uitree.Node {
	want := strings.TrimSpace(fp.ContentDesc)
	if want == "" {
		return collectTextOrDesc(tree, fp)
	}
	var out []*uitree.Node
	nodes := tree.Nodes()
	for i := range nodes {
		if strings.TrimSpace(nodes[i].ContentDesc) == want {
			out = append(out, &nodes[i])
		}
	}
	return out
}

func collectTextOrDesc(tree *uitree.Tree, fp *fingerprint.Fingerprint) []*uitree.Node {
	if fp.HasText() || fp.HasContentDesc() {
		return scanTextOrDesc(tree, fp.Text, fp.ContentDesc)
	}
	return collectByBounds(tree, fp)
}

// collectByBounds matches a recording that carries only a reference
// rectangle: exact bounds first, then the single best geometric match
// above a quality floor.
func collectByBounds(tree *uitree.Tree, fp *fingerprint.Fingerprint) []*uitree.Node {
	ref, ok := fp.ParsedBounds()
	if !ok {
		return nil
	}
	want := uitree.NormalizeBoundsString(fp.Bounds)

	var exact []*uitree.Node
	var best *uitree.Node
	bestQ := 0.0
	nodes := tree.Nodes()
	for i := range nodes {
		n := &nodes[i]
		if uitree.NormalizeBoundsString(n.BoundsRaw) == want {
			exact = append(exact, n)
			continue
		}
		if q := core.MatchBounds(ref, n.Bounds).Quality; q > bestQ {
			best, bestQ = n, q
		}
	}
	if len(exact) > 0 {
		return exact
	}
	if best != nil && bestQ >= 0.5 {
		return []*uitree.Node{best}
	}
	return nil
}

// scanTextOrDesc scans in tiers and returns at the first tier that
// yields anything: exact text, exact description, text containment,
// description containment.
func scanTextOrDesc(tree *uitree.Tree, text, desc string) []*uitree.Node {
	text = strings.TrimSpace(text)
	desc = strings.TrimSpace(desc)
	nodes := tree.Nodes()

	type tier func(*uitree.Node) bool
	tiers := []tier{}
	if text != "" {
		tiers = append(tiers, func(n *uitree.Node) bool {
			return strings.TrimSpace(n.Text) == text
		})
	}
	if desc != "" {
		tiers = append(tiers, func(n *uitree.Node) bool {
			return strings.TrimSpace(n.ContentDesc) == desc
		})
	}
	if text != "" {
		tiers = append(tiers, func(n *uitree.Node) bool {
			return strings.Contains(n.Text, text)
		})
	}
	if desc != "" {
		tiers = append(tiers, func(n *uitree.Node) bool {
			return strings.Contains(n.ContentDesc, desc)
		})
	}

	for _, match := range tiers {
		var out []*uitree.Node
		for i := range nodes {
			if match(&nodes[i]) {
				out = append(out, &nodes[i])
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func hasDescendantText(tree *uitree.Tree, n *uitree.Node, text string) bool {
	found := false
	tree.Descendants(n.Index, func(d *uitree.Node) bool {
		if d.Text == text {
			found = true
			return false
		}
		return true
	})
	return found
}

// FilterForBatch narrows candidates for batch execution: when any
// candidate is clickable, the rest are dropped. Non-clickable matches
// survive only when nothing clickable matched at all.
func FilterForBatch(cands []*uitree.Node) []*uitree.Node {
	var clickable []*uitree.Node
	for _, c := range cands {
		if c.Clickable {
			clickable = append(clickable, c)
		}
	}
	if len(clickable) > 0 {
		return clickable
	}
	return cands
}

// FilterForSingle narrows candidates for single-target execution by
// the recorded bounds string, compared whitespace-insensitively. When
// no candidate sits at the recorded bounds the full set is returned,
// ranked by geometric match quality against the recorded rectangle, so
// scoring sees the closest relocation first.
func FilterForSingle(cands []*uitree.Node, recordedBounds string) []*uitree.Node {
	want := uitree.NormalizeBoundsString(recordedBounds)
	if want == "" {
		return cands
	}
	var exact []*uitree.Node
	for _, c := range cands {
		if uitree.NormalizeBoundsString(c.BoundsRaw) == want {
			exact = append(exact, c)
		}
	}
	if len(exact) > 0 {
		return exact
	}

	ref, err := core.ParseBounds(recordedBounds)
	if err != nil {
		return cands
	}
	out := make([]*uitree.Node, len(cands))
	copy(out, cands)
	quality := make(map[int]float64, len(out))
	for _, c := range out {
		quality[c.Index] = core.MatchBounds(ref, c.Bounds).Quality
	}
	sort.SliceStable(out, func(i, j int) bool {
		return quality[out[i].Index] > quality[out[j].Index]
	})
	return out
}
