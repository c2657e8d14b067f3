// Package scorer ranks collected candidates against a fingerprint and
// applies the confidence gate that decides whether a match is good
// enough to act on.
package scorer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/devicelab-dev/tapresolver/pkg/core"
	"github.com/devicelab-dev/tapresolver/pkg/fingerprint"
	"github.com/devicelab-dev/tapresolver/pkg/uitree"
)

// Weights controls the relative importance of each match factor. Only
// factors the fingerprint actually provides enter the total; their
// weights are renormalized so a perfect match always scores 1.0
// regardless of how sparse the fingerprint is.
type Weights struct {
	Text       float64 `json:"text" yaml:"text"`
	Desc       float64 `json:"desc" yaml:"desc"`
	Position   float64 `json:"position" yaml:"position"`
	ResourceID float64 `json:"resource_id" yaml:"resource_id"`
	Clickable  float64 `json:"clickable" yaml:"clickable"`
}

// DefaultWeights returns the standard factor weights.
func DefaultWeights() Weights {
	return Weights{
		Text:       0.30,
		Desc:       0.25,
		Position:   0.20,
		ResourceID: 0.15,
		Clickable:  0.10,
	}
}

// DefaultMinScore is the confidence gate applied by EvaluateBest.
const DefaultMinScore = 0.3

// ScoredCandidate pairs a candidate node with its total score and the
// per-factor breakdown used to compute it.
type ScoredCandidate struct {
	Node      *uitree.Node
	Score     float64
	Breakdown map[string]float64
	Reasons   []string
}

// Scorer evaluates candidates with a fixed weight table.
type Scorer struct {
	weights  Weights
	minScore float64
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithWeights overrides the default factor weights.
func WithWeights(w Weights) Option {
	return func(s *Scorer) { s.weights = w }
}

// WithMinScore overrides the confidence gate.
func WithMinScore(min float64) Option {
	return func(s *Scorer) { s.minScore = min }
}

// New creates a scorer with default weights and gate.
func New(opts ...Option) *Scorer {
	s := &Scorer{weights: DefaultWeights(), minScore: DefaultMinScore}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MinScore returns the configured confidence gate.
func (s *Scorer) MinScore() float64 { return s.minScore }

// Score evaluates every candidate and returns them sorted by descending
// score. The sort is stable, so ties keep their scan order. Scoring has
// no side effects; identical input always produces identical output.
func (s *Scorer) Score(cands []*uitree.Node, fp *fingerprint.Fingerprint) []ScoredCandidate {
	refBounds, hasRef := fp.ParsedBounds()

	out := make([]ScoredCandidate, 0, len(cands))
	for _, c := range cands {
		out = append(out, s.scoreOne(c, fp, refBounds, hasRef))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func (s *Scorer) scoreOne(c *uitree.Node, fp *fingerprint.Fingerprint, refBounds core.Bounds, hasRef bool) ScoredCandidate {
	sc := ScoredCandidate{Node: c, Breakdown: map[string]float64{}}

	total := 0.0
	weightSum := 0.0
	apply := func(name string, weight, sub float64) {
		sub = clamp01(sub)
		sc.Breakdown[name] = sub
		total += sub * weight
		weightSum += weight
	}

	if fp.HasText() {
		apply("text", s.weights.Text, textScore(fp.Text, c.Text, 0.7, 0.5))
	}
	if fp.HasContentDesc() {
		apply("desc", s.weights.Desc, textScore(fp.ContentDesc, c.ContentDesc, 0.8, 0.6))
	}
	if hasRef {
		apply("position", s.weights.Position, positionScore(refBounds.CenterDistance(c.Bounds)))
	}
	if fp.HasResourceID() {
		sub := 0.0
		if c.ResourceID == fp.ResourceID {
			sub = 1.0
		}
		apply("resource_id", s.weights.ResourceID, sub)
	}
	if fp.Clickable {
		sub := 0.0
		if c.Clickable {
			sub = 1.0
		}
		apply("clickable", s.weights.Clickable, sub)
	}

	if weightSum > 0 {
		sc.Score = clamp01(total / weightSum)
	}
	return sc
}

// EvaluateBest scores all candidates and returns the winner, or a typed
// failure when nothing clears the gate. An empty candidate set maps to
// ErrNoCandidates; a best candidate whose low score is explained by an
// opposite-state label gets that called out as the reason.
func (s *Scorer) EvaluateBest(cands []*uitree.Node, fp *fingerprint.Fingerprint) (*ScoredCandidate, error) {
	if len(cands) == 0 {
		return nil, core.ErrNoCandidates
	}

	scored := s.Score(cands, fp)
	best := &scored[0]
	if best.Score >= s.minScore {
		return best, nil
	}

	reasons := lowScoreReasons(best)
	details := map[string]interface{}{
		"best_score": best.Score,
		"reasons":    reasons,
		"candidates": len(cands),
	}

	if opposite, expected, actual := oppositeState(fp, best.Node); opposite {
		msg := fmt.Sprintf(
			"element %q looks like the completed state of %q; the action may already be done", actual, expected)
		return nil, core.ErrNoValidMatch.
			WithMessage(msg).
			WithDetails(details).
			WithCause(core.ErrOppositeState)
	}

	best.Reasons = reasons
	return nil, core.ErrNoValidMatch.WithDetails(details)
}

// EvaluateUnique is EvaluateBest for callers that demand a single
// unambiguous winner: a tie at the top score within epsilon yields
// ErrAmbiguousMatch.
func (s *Scorer) EvaluateUnique(cands []*uitree.Node, fp *fingerprint.Fingerprint) (*ScoredCandidate, error) {
	best, err := s.EvaluateBest(cands, fp)
	if err != nil {
		return nil, err
	}

	scored := s.Score(cands, fp)
	const epsilon = 1e-6
	tied := 0
	for i := range scored {
		if math.Abs(scored[i].Score-best.Score) < epsilon {
			tied++
		}
	}
	if tied > 1 {
		return nil, core.ErrAmbiguousMatch.WithDetails(map[string]interface{}{
			"top_score": best.Score,
			"tied":      tied,
		})
	}
	return best, nil
}

func lowScoreReasons(sc *ScoredCandidate) []string {
	var reasons []string
	for _, name := range []string{"text", "desc", "position", "resource_id", "clickable"} {
		sub, ok := sc.Breakdown[name]
		if !ok {
			continue
		}
		if sub < 0.5 {
			reasons = append(reasons, fmt.Sprintf("%s factor scored %.2f", name, sub))
		}
	}
	if len(reasons) == 0 {
		reasons = append(reasons, fmt.Sprintf("total score %.2f below threshold", sc.Score))
	}
	return reasons
}

// textScore implements the shared text/description sub-score: exact
// trimmed equality wins, containment in either direction gets
// containScore, anything else falls back to character overlap scaled
// by overlapScale.
func textScore(expected, actual string, containScore, overlapScale float64) float64 {
	e := strings.TrimSpace(expected)
	a := strings.TrimSpace(actual)
	if e == "" || a == "" {
		return 0
	}
	if e == a {
		return 1.0
	}
	// A completed-state label must not collect containment credit, or
	// "已关注" would look like a strong match for "关注".
	if isOppositeState(e, a) {
		return 0
	}
	if strings.Contains(a, e) || strings.Contains(e, a) {
		return containScore
	}
	return charOverlap(e, a) * overlapScale
}

// positionScore maps center distance in pixels to [0.1, 1.0] with a
// piecewise linear decay.
func positionScore(dist float64) float64 {
	switch {
	case dist < 50:
		return 1.0
	case dist < 200:
		return 1.0 - (dist-50)/150*0.3
	case dist < 500:
		return 0.7 - (dist-200)/300*0.5
	default:
		return 0.1
	}
}

// charOverlap returns the multiset character overlap between two
// strings as a ratio of the longer one, in [0,1].
func charOverlap(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	longer := len(ra)
	if len(rb) > longer {
		longer = len(rb)
	}
	if longer == 0 {
		return 0
	}

	counts := make(map[rune]int, len(ra))
	for _, r := range ra {
		counts[r]++
	}
	common := 0
	for _, r := range rb {
		if counts[r] > 0 {
			counts[r]--
			common++
		}
	}
	return float64(common) / float64(longer)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
