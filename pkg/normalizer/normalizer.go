// Package normalizer turns a raw clicked rectangle into a structurally
// sound tap target. Feed-style layouts often report the bounds of a
// decorative inner view; normalization climbs to the scrollable
// container, finds the enclosing card and picks the node that actually
// receives the tap.
package normalizer

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/devicelab-dev/tapresolver/pkg/core"
	"github.com/devicelab-dev/tapresolver/pkg/uitree"
)

// Column bands for multi-column (waterfall) layouts.
type Column int

const (
	ColumnUnknown Column = iota
	ColumnLeft
	ColumnRight
)

// String returns the band name.
func (c Column) String() string {
	switch c {
	case ColumnLeft:
		return "left"
	case ColumnRight:
		return "right"
	default:
		return "unknown"
	}
}

// ColumnInfo locates a card inside its column: which band it occupies,
// its 0-based rank by vertical position, and how many cards share the
// band.
type ColumnInfo struct {
	Column   Column
	Position int
	Total    int
}

// Target is the fully normalized click site. Callers usually tap the
// clickable parent's center.
type Target struct {
	Clicked         *uitree.Node
	ScrollContainer *uitree.Node
	CardRoot        *uitree.Node
	ClickableParent *uitree.Node
	Column          ColumnInfo
	// UsedFallback is set when no clickable descendant qualified and
	// the card root itself was chosen.
	UsedFallback bool
}

// Config tunes the structural heuristics.
type Config struct {
	// ClickableParentMinIoU is the minimum overlap between a clickable
	// descendant and the card root for it to count as the tap target.
	ClickableParentMinIoU float64 `json:"clickable_parent_min_iou" yaml:"clickable_parent_min_iou"`
	// MinBoundsDiffPx rejects clickable descendants whose rectangle is
	// virtually identical to the card root's.
	MinBoundsDiffPx int `json:"min_bounds_diff_px" yaml:"min_bounds_diff_px"`
	// LeftColumnMaxX and RightColumnMinX are the band thresholds for
	// the card root's left edge.
	LeftColumnMaxX  int `json:"left_column_max_x" yaml:"left_column_max_x"`
	RightColumnMinX int `json:"right_column_min_x" yaml:"right_column_min_x"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		ClickableParentMinIoU: 0.8,
		MinBoundsDiffPx:       10,
		LeftColumnMaxX:        100,
		RightColumnMinX:       500,
	}
}

// Normalizer resolves raw click bounds against a tree snapshot.
type Normalizer struct {
	cfg Config
	log zerolog.Logger
}

// New creates a normalizer. Zero config fields fall back to defaults.
func New(cfg Config, log zerolog.Logger) *Normalizer {
	def := DefaultConfig()
	if cfg.ClickableParentMinIoU <= 0 {
		cfg.ClickableParentMinIoU = def.ClickableParentMinIoU
	}
	if cfg.MinBoundsDiffPx <= 0 {
		cfg.MinBoundsDiffPx = def.MinBoundsDiffPx
	}
	if cfg.LeftColumnMaxX <= 0 {
		cfg.LeftColumnMaxX = def.LeftColumnMaxX
	}
	if cfg.RightColumnMinX <= 0 {
		cfg.RightColumnMinX = def.RightColumnMinX
	}
	return &Normalizer{cfg: cfg, log: log}
}

// Normalize resolves the clicked bounds string into a Target.
func (nm *Normalizer) Normalize(tree *uitree.Tree, clickedBounds string) (*Target, error) {
	bounds, err := core.ParseBounds(clickedBounds)
	if err != nil {
		return nil, err
	}

	clicked := nm.resolveClicked(tree, clickedBounds, bounds)
	if clicked == nil {
		return nil, core.ErrNodeNotFound.WithDetails(map[string]interface{}{
			"bounds": clickedBounds,
		})
	}

	container := nm.findScrollContainer(tree, clicked)
	if container == nil {
		return nil, core.ErrNoScrollContainer.WithDetails(map[string]interface{}{
			"clicked": clicked.BoundsRaw,
		})
	}

	cardRoot := nm.findCardRoot(tree, clicked, container)
	if cardRoot == nil {
		return nil, core.ErrNoCardRoot.WithDetails(map[string]interface{}{
			"clicked":   clicked.BoundsRaw,
			"container": container.BoundsRaw,
		})
	}

	clickableParent, fallback := nm.findClickableParent(tree, cardRoot)
	if fallback {
		nm.log.Debug().
			Str("card_root", cardRoot.BoundsRaw).
			Msg("no clickable descendant qualified, tapping the card root itself")
	}

	return &Target{
		Clicked:         clicked,
		ScrollContainer: container,
		CardRoot:        cardRoot,
		ClickableParent: clickableParent,
		Column:          nm.columnInfo(tree, cardRoot, container),
		UsedFallback:    fallback,
	}, nil
}

// resolveClicked finds the tree node for the clicked rectangle: exact
// bounds first, then the smallest containing node, then the best
// overlap above a minimal IoU.
func (nm *Normalizer) resolveClicked(tree *uitree.Tree, raw string, b core.Bounds) *uitree.Node {
	if n := tree.FindExactBounds(raw); n != nil {
		return n
	}
	if n := tree.SmallestContaining(b); n != nil {
		return n
	}
	return tree.BestOverlap(b, 0.1)
}

// scrollClassPriority ranks container classes; higher wins. Classes at
// or above the immediate-accept bar stop the ancestor walk on sight.
var scrollClassPriority = []struct {
	marker   string
	priority int
}{
	{"recyclerview", 100},
	{"gridview", 90},
	{"listview", 85},
	{"scrollview", 70}, // also matches nestedscrollview and horizontalscrollview
	{"viewpager", 30},
}

const immediateAcceptPriority = 85

func classPriority(className string) int {
	lower := strings.ToLower(className)
	for _, entry := range scrollClassPriority {
		if strings.Contains(lower, entry.marker) {
			return entry.priority
		}
	}
	return 0
}

// findScrollContainer walks ancestors and returns the best scrollable
// container: a list-like class is taken immediately, otherwise the
// highest-priority (nearest on ties) scrollable ancestor wins.
func (nm *Normalizer) findScrollContainer(tree *uitree.Tree, clicked *uitree.Node) *uitree.Node {
	var best *uitree.Node
	bestPriority := 0

	tree.Ancestors(clicked.Index, func(a *uitree.Node) bool {
		p := classPriority(a.ClassName)
		if p == 0 && a.Scrollable {
			p = 60
		}
		if p == 0 {
			return true
		}
		if p >= immediateAcceptPriority {
			best = a
			bestPriority = p
			return false
		}
		if p > bestPriority {
			best = a
			bestPriority = p
		}
		return true
	})
	return best
}

// genericContainerMarkers identify layout classes that can host a card.
var genericContainerMarkers = []string{
	"framelayout",
	"linearlayout",
	"relativelayout",
	"constraintlayout",
	"viewgroup",
	"cardview",
}

func isGenericContainer(className string) bool {
	lower := strings.ToLower(className)
	for _, m := range genericContainerMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// isCardRoot recognizes the describable card envelope: a non-clickable
// generic container with an accessibility description.
func isCardRoot(n *uitree.Node) bool {
	return !n.Clickable &&
		strings.TrimSpace(n.ContentDesc) != "" &&
		isGenericContainer(n.ClassName)
}

// findCardRoot walks ancestors from the clicked node up to (and not
// past) the scroll container, returning the first card root that lies
// within the container's bounds.
func (nm *Normalizer) findCardRoot(tree *uitree.Tree, clicked, container *uitree.Node) *uitree.Node {
	if isCardRoot(clicked) && container.Bounds.Contains(clicked.Bounds) {
		return clicked
	}
	var found *uitree.Node
	tree.Ancestors(clicked.Index, func(a *uitree.Node) bool {
		if a.Index == container.Index {
			return false
		}
		if isCardRoot(a) && container.Bounds.Contains(a.Bounds) {
			found = a
			return false
		}
		return true
	})
	return found
}

// findClickableParent picks the clickable descendant of the card root
// that overlaps it best. Descendants whose rectangle barely differs
// from the root's are skipped so the choice is a real inner control,
// not the same box re-reported. Falls back to the card root.
func (nm *Normalizer) findClickableParent(tree *uitree.Tree, cardRoot *uitree.Node) (*uitree.Node, bool) {
	var best *uitree.Node
	bestIoU := 0.0

	tree.Descendants(cardRoot.Index, func(d *uitree.Node) bool {
		if !d.Clickable || !cardRoot.Bounds.Contains(d.Bounds) {
			return true
		}
		if boundsDiff(d.Bounds, cardRoot.Bounds) < nm.cfg.MinBoundsDiffPx {
			return true
		}
		iou := d.Bounds.IoU(cardRoot.Bounds)
		if iou < nm.cfg.ClickableParentMinIoU {
			return true
		}
		// Ties keep the first descendant in document order.
		if iou > bestIoU {
			best = d
			bestIoU = iou
		}
		return true
	})

	if best == nil {
		return cardRoot, true
	}
	return best, false
}

// boundsDiff is the largest per-edge difference between two rectangles.
func boundsDiff(a, b core.Bounds) int {
	d := absInt(a.Left - b.Left)
	if v := absInt(a.Top - b.Top); v > d {
		d = v
	}
	if v := absInt(a.Right - b.Right); v > d {
		d = v
	}
	if v := absInt(a.Bottom - b.Bottom); v > d {
		d = v
	}
	return d
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// columnInfo classifies the card root into a column band and ranks it
// among the container's card roots sharing that band, top to bottom.
func (nm *Normalizer) columnInfo(tree *uitree.Tree, cardRoot, container *uitree.Node) ColumnInfo {
	band := nm.classifyColumn(cardRoot.Bounds.Left)
	info := ColumnInfo{Column: band}

	var peers []*uitree.Node
	tree.Descendants(container.Index, func(d *uitree.Node) bool {
		if isCardRoot(d) && container.Bounds.Contains(d.Bounds) &&
			nm.classifyColumn(d.Bounds.Left) == band {
			peers = append(peers, d)
		}
		return true
	})
	sort.SliceStable(peers, func(i, j int) bool {
		return peers[i].Bounds.Top < peers[j].Bounds.Top
	})

	info.Total = len(peers)
	for i, p := range peers {
		if p.Index == cardRoot.Index {
			info.Position = i
			break
		}
	}
	return info
}

func (nm *Normalizer) classifyColumn(left int) Column {
	switch {
	case left <= nm.cfg.LeftColumnMaxX:
		return ColumnLeft
	case left >= nm.cfg.RightColumnMinX:
		return ColumnRight
	default:
		return ColumnUnknown
	}
}
