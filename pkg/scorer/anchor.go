package scorer

import (
	"sort"
	"strings"

	"github.com/devicelab-dev/tapresolver/pkg/core"
	"github.com/devicelab-dev/tapresolver/pkg/uitree"
)

// AnchorTarget describes a target identified through a related label
// rather than its own text, e.g. "the button inside the card whose
// title is Alice". Used when the fingerprint carries a child or sibling
// anchor instead of a direct text.
type AnchorTarget struct {
	// AnchorText is the related label's text.
	AnchorText string
	// Bounds is the recorded reference rectangle; zero when unknown.
	Bounds core.Bounds
	// HasBounds tells whether Bounds is meaningful.
	HasBounds bool
	// RequireClickable demands a directly clickable node.
	RequireClickable bool
}

// Point budgets of the anchored scorer. Scores are computed on a 0-100
// scale and collapsed to [0,1] for the shared confidence gate.
const (
	anchorTextPoints = 40.0
	boundsPoints     = 30.0
	clickablePoints  = 20.0
	sizePoints       = 10.0

	boundsTolerancePx = 20
)

// ScoreAnchored evaluates candidates against a relation-anchored
// target, returning them sorted by descending score. The sort is
// stable so ties keep scan order.
func ScoreAnchored(cands []*uitree.Node, target AnchorTarget) []ScoredCandidate {
	out := make([]ScoredCandidate, 0, len(cands))
	for _, c := range cands {
		out = append(out, scoreAnchoredOne(c, target))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func scoreAnchoredOne(c *uitree.Node, target AnchorTarget) ScoredCandidate {
	sc := ScoredCandidate{Node: c, Breakdown: map[string]float64{}}
	points := 0.0

	// Anchor text: exact gets full credit, containment half.
	textPts := 0.0
	anchor := strings.TrimSpace(target.AnchorText)
	if anchor != "" {
		candText := strings.TrimSpace(c.Text)
		candDesc := strings.TrimSpace(c.ContentDesc)
		switch {
		case candText == anchor || candDesc == anchor:
			textPts = anchorTextPoints
		case strings.Contains(candText, anchor) || strings.Contains(candDesc, anchor):
			textPts = anchorTextPoints / 2
		}
	}
	points += textPts
	sc.Breakdown["anchor_text"] = textPts / anchorTextPoints

	// Bounds proximity by Manhattan center distance against a fixed
	// pixel tolerance.
	boundsPts := 0.0
	if target.HasBounds {
		if c.Bounds == target.Bounds {
			boundsPts = boundsPoints
		} else {
			dist := c.Bounds.ManhattanDistance(target.Bounds)
			switch {
			case dist <= boundsTolerancePx:
				boundsPts = 30
			case dist <= 2*boundsTolerancePx:
				boundsPts = 20
			case dist <= 5*boundsTolerancePx:
				boundsPts = 10
			default:
				boundsPts = 5
			}
		}
	}
	points += boundsPts
	sc.Breakdown["bounds"] = boundsPts / boundsPoints

	clickPts := 0.0
	switch {
	case c.Clickable:
		clickPts = clickablePoints
	case !target.RequireClickable:
		clickPts = clickablePoints / 2
	}
	points += clickPts
	sc.Breakdown["clickable"] = clickPts / clickablePoints

	sizePts := sizePlausibility(c.Bounds, target)
	points += sizePts
	sc.Breakdown["size"] = sizePts / sizePoints

	sc.Score = clamp01(points / 100)
	return sc
}

// sizePlausibility scores the candidate's area: against the reference
// element's size when known, otherwise against a plausible tap-target
// band that penalizes slivers and whole-screen containers.
func sizePlausibility(b core.Bounds, target AnchorTarget) float64 {
	area := b.Area()
	if target.HasBounds && target.Bounds.Area() > 0 {
		ratio := float64(area) / float64(target.Bounds.Area())
		if ratio > 1 {
			ratio = 1 / ratio
		}
		return clamp01(ratio) * sizePoints
	}
	switch {
	case area < 2500:
		return 3
	case area > 100000:
		return 5
	default:
		return sizePoints
	}
}
