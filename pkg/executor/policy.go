// Package executor selects which normalized targets to act on and
// drives the physical taps, including pacing, session budgets and
// mid-batch re-resolution.
package executor

import (
	"math/rand"
	"sort"
	"time"

	"github.com/devicelab-dev/tapresolver/pkg/normalizer"
)

// PolicyKind enumerates the closed set of selection behaviors.
type PolicyKind int

const (
	PolicyMatchBest PolicyKind = iota
	PolicyFirst
	PolicyLast
	PolicyRandom
	PolicyAll
)

// String returns the policy name.
func (k PolicyKind) String() string {
	switch k {
	case PolicyMatchBest:
		return "match_best"
	case PolicyFirst:
		return "first"
	case PolicyLast:
		return "last"
	case PolicyRandom:
		return "random"
	case PolicyAll:
		return "all"
	default:
		return "unknown"
	}
}

// RefreshPolicy governs when the tree is re-resolved mid-batch.
type RefreshPolicy int

const (
	RefreshNever RefreshPolicy = iota
	RefreshOnMutation
	RefreshEveryK
	RefreshAlways
)

// String returns the refresh policy name.
func (r RefreshPolicy) String() string {
	switch r {
	case RefreshNever:
		return "never"
	case RefreshOnMutation:
		return "on_mutation"
	case RefreshEveryK:
		return "every_k"
	case RefreshAlways:
		return "always"
	default:
		return "unknown"
	}
}

// MatchDirection orders the batch walk over the visual baseline.
type MatchDirection int

const (
	DirectionForward MatchDirection = iota
	DirectionBackward
)

// String returns the direction name.
func (d MatchDirection) String() string {
	if d == DirectionBackward {
		return "backward"
	}
	return "forward"
}

// BatchConfig paces and bounds an All-policy run.
type BatchConfig struct {
	// Interval is the base pause between consecutive taps.
	Interval time.Duration `json:"interval" yaml:"interval"`
	// Jitter widens each pause by a uniform random amount in [0, Jitter].
	Jitter time.Duration `json:"jitter" yaml:"jitter"`
	// MaxPerSession stops the batch after this many taps; 0 means
	// unlimited. Hitting the cap is a status, not an error.
	MaxPerSession int `json:"max_per_session" yaml:"max_per_session"`
	// Cooldown is the pause the caller should honor before starting
	// another session once the cap was hit with targets remaining.
	Cooldown time.Duration `json:"cooldown" yaml:"cooldown"`
	// ContinueOnError keeps the batch going past failed taps.
	ContinueOnError bool `json:"continue_on_error" yaml:"continue_on_error"`

	Refresh RefreshPolicy `json:"refresh" yaml:"refresh"`
	// RefreshEvery is the k for RefreshEveryK.
	RefreshEvery int `json:"refresh_every" yaml:"refresh_every"`

	// Direction walks the visual baseline forward (top-left first) or
	// backward (bottom-right first).
	Direction MatchDirection `json:"direction" yaml:"direction"`
}

// Policy is a closed selection variant. Use the constructors; the kind
// decides which fields are meaningful.
type Policy struct {
	Kind PolicyKind

	// MatchBest fields.
	MinConfidence   float64
	FallbackToFirst bool

	// Random field.
	Seed int64

	// All fields.
	Batch BatchConfig
}

// MatchBest selects the highest-confidence target, failing (or falling
// back to the first in visual order) below min.
func MatchBest(min float64, fallbackToFirst bool) Policy {
	return Policy{Kind: PolicyMatchBest, MinConfidence: min, FallbackToFirst: fallbackToFirst}
}

// First selects the first target in visual order.
func First() Policy { return Policy{Kind: PolicyFirst} }

// Last selects the last target in visual order.
func Last() Policy { return Policy{Kind: PolicyLast} }

// Random selects a seed-deterministic target from the visual order.
func Random(seed int64) Policy { return Policy{Kind: PolicyRandom, Seed: seed} }

// All taps every target under the batch configuration.
func All(batch BatchConfig) Policy { return Policy{Kind: PolicyAll, Batch: batch} }

// Target is a normalized click site annotated with the match
// confidence that produced it.
type Target struct {
	Norm       *normalizer.Target
	Confidence float64
}

// TapPoint returns the coordinates to tap: the clickable parent's
// center.
func (t Target) TapPoint() (int, int) {
	return t.Norm.ClickableParent.Bounds.Center()
}

// SortVisual orders targets top-to-bottom, then left-to-right, by the
// clickable parent's bounds. The sort is stable and in place; it is
// the fixed baseline every positional policy indexes into.
func SortVisual(targets []Target) {
	sort.SliceStable(targets, func(i, j int) bool {
		bi := targets[i].Norm.ClickableParent.Bounds
		bj := targets[j].Norm.ClickableParent.Bounds
		if bi.Top != bj.Top {
			return bi.Top < bj.Top
		}
		return bi.Left < bj.Left
	})
}

// orient applies the batch direction to an already visually sorted
// slice, in place.
func orient(targets []Target, dir MatchDirection) {
	if dir != DirectionBackward {
		return
	}
	for i, j := 0, len(targets)-1; i < j; i, j = i+1, j-1 {
		targets[i], targets[j] = targets[j], targets[i]
	}
}

// pick resolves single-target policies to an index into the sorted
// slice. Returns -1 when the policy cannot choose (empty input, or
// MatchBest below the gate without fallback).
func pick(targets []Target, policy Policy) int {
	if len(targets) == 0 {
		return -1
	}
	switch policy.Kind {
	case PolicyFirst:
		return 0
	case PolicyLast:
		return len(targets) - 1
	case PolicyRandom:
		return rand.New(rand.NewSource(policy.Seed)).Intn(len(targets))
	case PolicyMatchBest:
		best := 0
		for i := range targets {
			if targets[i].Confidence > targets[best].Confidence {
				best = i
			}
		}
		if targets[best].Confidence >= policy.MinConfidence {
			return best
		}
		if policy.FallbackToFirst {
			return 0
		}
		return -1
	default:
		return -1
	}
}
