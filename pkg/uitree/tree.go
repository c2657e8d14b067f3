// Package uitree parses Android UI hierarchy dumps into a flat,
// index-addressed tree that the matching pipeline can walk cheaply in
// both directions.
package uitree

import (
	"encoding/xml"
	"strings"

	"github.com/devicelab-dev/tapresolver/pkg/core"
)

// NoParent marks the parent index of root nodes.
const NoParent = -1

// Node is a single element of the hierarchy. Nodes are stored in a flat
// slice and reference each other by index, so ancestor walks never
// recurse and never chase pointers.
type Node struct {
	Index    int
	Parent   int // NoParent for roots
	Children []int
	Depth    int

	Text        string
	ResourceID  string
	ContentDesc string
	ClassName   string
	Package     string

	BoundsRaw string // attribute value as dumped, kept for exact comparison
	Bounds    core.Bounds

	Clickable  bool
	Scrollable bool
	Enabled    bool
	Selected   bool
	Focused    bool
	Displayed  bool
	Checked    bool
}

// Tree is an immutable snapshot of a parsed hierarchy.
type Tree struct {
	nodes []Node
}

// Parse parses a UI hierarchy dump. Both dump flavors are accepted:
// element tags named after the widget class (uiautomator dump) and
// generic <node> tags with a class attribute (Appium page source).
func Parse(xmlData string) (*Tree, error) {
	decoder := xml.NewDecoder(strings.NewReader(xmlData))

	t := &Tree{}
	foundHierarchy := false
	var parseNode func(parent, depth int) (int, error)

	parseNode = func(parent, depth int) (int, error) {
		for {
			token, err := decoder.Token()
			if err != nil {
				return -1, err
			}

			switch tok := token.(type) {
			case xml.StartElement:
				if tok.Name.Local == "hierarchy" {
					foundHierarchy = true
					continue
				}

				idx := len(t.nodes)
				t.nodes = append(t.nodes, Node{
					Index:     idx,
					Parent:    parent,
					Depth:     depth,
					ClassName: tok.Name.Local,
					Enabled:   true,
					Displayed: true,
				})

				for _, attr := range tok.Attr {
					n := &t.nodes[idx]
					switch attr.Name.Local {
					case "text":
						n.Text = attr.Value
					case "resource-id":
						n.ResourceID = attr.Value
					case "content-desc":
						n.ContentDesc = attr.Value
					case "class":
						n.ClassName = attr.Value
					case "package":
						n.Package = attr.Value
					case "bounds":
						n.BoundsRaw = attr.Value
						if b, err := core.ParseBounds(attr.Value); err == nil {
							n.Bounds = b
						}
					case "clickable":
						n.Clickable = attr.Value == "true"
					case "scrollable":
						n.Scrollable = attr.Value == "true"
					case "enabled":
						n.Enabled = attr.Value == "true"
					case "selected":
						n.Selected = attr.Value == "true"
					case "focused":
						n.Focused = attr.Value == "true"
					case "displayed":
						n.Displayed = attr.Value != "false"
					case "checked":
						n.Checked = attr.Value == "true"
					}
				}

				for {
					child, err := parseNode(idx, depth+1)
					if err != nil || child < 0 {
						break
					}
					t.nodes[idx].Children = append(t.nodes[idx].Children, child)
				}

				return idx, nil

			case xml.EndElement:
				return -1, nil // end of current element
			}
		}
	}

	var parseErr error
	for {
		idx, err := parseNode(NoParent, 0)
		if err != nil {
			if err.Error() != "EOF" {
				parseErr = err
			}
			break
		}
		if idx < 0 {
			continue
		}
	}

	if parseErr != nil && len(t.nodes) == 0 {
		return nil, core.ErrHierarchyParse.WithCause(parseErr)
	}
	if !foundHierarchy && len(t.nodes) == 0 {
		return nil, core.ErrHierarchyParse.WithMessage("no hierarchy or node elements found in dump")
	}

	return t, nil
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns the node at index i, or nil when i is out of range.
func (t *Tree) Node(i int) *Node {
	if i < 0 || i >= len(t.nodes) {
		return nil
	}
	return &t.nodes[i]
}

// ParentOf returns the parent of node i, or nil for roots.
func (t *Tree) ParentOf(i int) *Node {
	n := t.Node(i)
	if n == nil || n.Parent == NoParent {
		return nil
	}
	return &t.nodes[n.Parent]
}

// Nodes returns the backing slice in document order. Callers must not
// mutate it.
func (t *Tree) Nodes() []Node { return t.nodes }

// Ancestors walks from the parent of node i up to the root, invoking
// visit for each ancestor. The walk stops early when visit returns false.
func (t *Tree) Ancestors(i int, visit func(*Node) bool) {
	n := t.Node(i)
	if n == nil {
		return
	}
	for p := n.Parent; p != NoParent; p = t.nodes[p].Parent {
		if !visit(&t.nodes[p]) {
			return
		}
	}
}

// Descendants walks the subtree rooted at node i in document order,
// excluding i itself. The walk stops early when visit returns false.
func (t *Tree) Descendants(i int, visit func(*Node) bool) {
	n := t.Node(i)
	if n == nil {
		return
	}
	stack := make([]int, len(n.Children))
	for j := len(n.Children) - 1; j >= 0; j-- {
		stack[len(n.Children)-1-j] = n.Children[j]
	}
	// Reverse push keeps document order on pop.
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cur := &t.nodes[top]
		if !visit(cur) {
			return
		}
		for j := len(cur.Children) - 1; j >= 0; j-- {
			stack = append(stack, cur.Children[j])
		}
	}
}

// FindExactBounds returns the first node whose raw bounds attribute
// equals the given string after whitespace normalization, or nil.
func (t *Tree) FindExactBounds(bounds string) *Node {
	want := NormalizeBoundsString(bounds)
	for i := range t.nodes {
		if NormalizeBoundsString(t.nodes[i].BoundsRaw) == want {
			return &t.nodes[i]
		}
	}
	return nil
}

// SmallestContaining returns the node with the smallest area whose
// bounds fully contain b, or nil when nothing contains it.
func (t *Tree) SmallestContaining(b core.Bounds) *Node {
	var best *Node
	bestArea := 0
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.Bounds.Area() <= 0 || !n.Bounds.Contains(b) {
			continue
		}
		if best == nil || n.Bounds.Area() < bestArea {
			best = n
			bestArea = n.Bounds.Area()
		}
	}
	return best
}

// BestOverlap returns the node with the highest IoU against b, provided
// the IoU exceeds minIoU. Returns nil when nothing overlaps enough.
func (t *Tree) BestOverlap(b core.Bounds, minIoU float64) *Node {
	var best *Node
	bestIoU := minIoU
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.Bounds.Area() <= 0 {
			continue
		}
		if iou := n.Bounds.IoU(b); iou > bestIoU {
			best = n
			bestIoU = iou
		}
	}
	return best
}

// NormalizeBoundsString strips all whitespace from a bounds attribute so
// comparisons survive formatting differences between dump sources.
func NormalizeBoundsString(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}
