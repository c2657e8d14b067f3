// Package core holds the shared primitives of the resolution pipeline:
// screen geometry, the error taxonomy, and result types.
package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Bounds is an axis-aligned rectangle in device pixel coordinates,
// matching the uiautomator dump format "[left,top][right,bottom]".
type Bounds struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// ParseBounds parses a bounds string of the form "[l,t][r,b]".
// Whitespace inside the string is ignored.
func ParseBounds(s string) (Bounds, error) {
	cleaned := strings.ReplaceAll(s, " ", "")
	if !strings.HasPrefix(cleaned, "[") || !strings.HasSuffix(cleaned, "]") {
		return Bounds{}, ErrBoundsParse.WithMessage(fmt.Sprintf("invalid bounds format: %q", s))
	}
	parts := strings.Split(strings.Trim(cleaned, "[]"), "][")
	if len(parts) != 2 {
		return Bounds{}, ErrBoundsParse.WithMessage(fmt.Sprintf("invalid bounds format: %q", s))
	}

	lt := strings.Split(parts[0], ",")
	rb := strings.Split(parts[1], ",")
	if len(lt) != 2 || len(rb) != 2 {
		return Bounds{}, ErrBoundsParse.WithMessage(fmt.Sprintf("invalid coordinate pair in bounds: %q", s))
	}

	vals := make([]int, 0, 4)
	for _, raw := range []string{lt[0], lt[1], rb[0], rb[1]} {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return Bounds{}, ErrBoundsParse.WithMessage(fmt.Sprintf("non-numeric coordinate %q in bounds %q", raw, s))
		}
		vals = append(vals, v)
	}

	return Bounds{Left: vals[0], Top: vals[1], Right: vals[2], Bottom: vals[3]}, nil
}

// String serializes back to the dump format. ParseBounds(b.String())
// round-trips exactly.
func (b Bounds) String() string {
	return fmt.Sprintf("[%d,%d][%d,%d]", b.Left, b.Top, b.Right, b.Bottom)
}

// Width returns the rectangle width in pixels.
func (b Bounds) Width() int { return b.Right - b.Left }

// Height returns the rectangle height in pixels.
func (b Bounds) Height() int { return b.Bottom - b.Top }

// Area returns the rectangle area in square pixels.
func (b Bounds) Area() int { return b.Width() * b.Height() }

// IsZero reports whether the rectangle is the zero value.
func (b Bounds) IsZero() bool {
	return b.Left == 0 && b.Top == 0 && b.Right == 0 && b.Bottom == 0
}

// Center returns the integer center point.
func (b Bounds) Center() (int, int) {
	return (b.Left + b.Right) / 2, (b.Top + b.Bottom) / 2
}

// Contains reports whether other lies entirely inside b (edges inclusive).
func (b Bounds) Contains(other Bounds) bool {
	return b.Left <= other.Left && b.Top <= other.Top &&
		b.Right >= other.Right && b.Bottom >= other.Bottom
}

// ContainsPoint reports whether the point lies inside b (edges inclusive).
func (b Bounds) ContainsPoint(x, y int) bool {
	return x >= b.Left && x <= b.Right && y >= b.Top && y <= b.Bottom
}

// Intersection returns the overlap of two rectangles and whether a
// non-empty overlap exists.
func (b Bounds) Intersection(other Bounds) (Bounds, bool) {
	inter := Bounds{
		Left:   max(b.Left, other.Left),
		Top:    max(b.Top, other.Top),
		Right:  min(b.Right, other.Right),
		Bottom: min(b.Bottom, other.Bottom),
	}
	if inter.Left >= inter.Right || inter.Top >= inter.Bottom {
		return Bounds{}, false
	}
	return inter, true
}

// IoU computes intersection-over-union of two rectangles, in [0,1].
func (b Bounds) IoU(other Bounds) float64 {
	inter, ok := b.Intersection(other)
	if !ok {
		return 0
	}
	interArea := float64(inter.Area())
	union := float64(b.Area()+other.Area()) - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}

// CenterDistance returns the Euclidean distance between two rectangle
// centers in pixels.
func (b Bounds) CenterDistance(other Bounds) float64 {
	cx1, cy1 := b.Center()
	cx2, cy2 := other.Center()
	dx := float64(cx1 - cx2)
	dy := float64(cy1 - cy2)
	return math.Sqrt(dx*dx + dy*dy)
}

// ManhattanDistance returns the L1 distance between two rectangle centers.
func (b Bounds) ManhattanDistance(other Bounds) int {
	cx1, cy1 := b.Center()
	cx2, cy2 := other.Center()
	return abs(cx1-cx2) + abs(cy1-cy2)
}

// BoundsMatch describes how closely a reference rectangle matches a
// candidate rectangle when the two come from different tree snapshots.
type BoundsMatch struct {
	Exact      bool    // rectangles are identical
	Contained  bool    // the reference lies inside the candidate
	Contains   bool    // the candidate lies inside the reference
	IoU        float64 // intersection over union, [0,1]
	CenterDist float64 // distance between centers, pixels
	Quality    float64 // combined match quality, [0,1]
}

// MatchBounds scores how well a candidate rectangle matches a reference
// one. Quality blends IoU (weight 0.5), containment (0.3) and center
// proximity (0.2); an exact match scores 1.0.
func MatchBounds(reference, candidate Bounds) BoundsMatch {
	if reference == candidate {
		return BoundsMatch{Exact: true, IoU: 1, Quality: 1}
	}

	m := BoundsMatch{
		Contained:  candidate.Contains(reference),
		Contains:   reference.Contains(candidate),
		IoU:        reference.IoU(candidate),
		CenterDist: reference.CenterDistance(candidate),
	}

	quality := m.IoU * 0.5
	switch {
	case m.Contained:
		// Common on Android: the authored bounds are a mid-layer view
		// while the live hit target is an enclosing container.
		quality += 0.3
	case m.Contains:
		quality += 0.25
	case m.IoU > 0.5:
		quality += 0.15
	}

	refDiag := math.Hypot(float64(reference.Width()), float64(reference.Height()))
	candDiag := math.Hypot(float64(candidate.Width()), float64(candidate.Height()))
	if maxDist := (refDiag + candDiag) / 2; maxDist > 0 {
		quality += (1 - math.Min(m.CenterDist/maxDist, 1)) * 0.2
	}

	m.Quality = math.Min(quality, 1)
	return m
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
