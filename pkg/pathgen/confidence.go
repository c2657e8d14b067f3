package pathgen

import (
	"sync"
)

// Confidence bounds. Feedback never drives a strategy outside this
// range, so a cold strategy can always recover.
const (
	minConfidence = 0.10
	maxConfidence = 0.95

	learningRate = 0.1
)

// Default per-strategy confidence before any feedback is recorded.
var defaultConfidence = map[Strategy]float64{
	StrategyResourceID:     0.90,
	StrategyContentDesc:    0.85,
	StrategyText:           0.75,
	StrategyClassHierarchy: 0.65,
	StrategyComposite:      0.80,
	StrategyFallback:       0.60,
}

// ConfidenceStore tracks how well each generation strategy has been
// working, updated with exponential moving averages as resolutions
// succeed or fail. Safe for concurrent use.
type ConfidenceStore struct {
	mu   sync.RWMutex
	conf map[Strategy]float64
}

// NewConfidenceStore returns a store seeded with the default ratings.
func NewConfidenceStore() *ConfidenceStore {
	conf := make(map[Strategy]float64, len(defaultConfidence))
	for s, c := range defaultConfidence {
		conf[s] = c
	}
	return &ConfidenceStore{conf: conf}
}

// Get returns the current confidence for a strategy.
func (cs *ConfidenceStore) Get(s Strategy) float64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if c, ok := cs.conf[s]; ok {
		return c
	}
	return minConfidence
}

// RecordSuccess nudges the strategy's confidence toward 1.
func (cs *ConfidenceStore) RecordSuccess(s Strategy) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	c := cs.conf[s]
	cs.conf[s] = clamp(c + (1-c)*learningRate)
}

// RecordFailure decays the strategy's confidence.
func (cs *ConfidenceStore) RecordFailure(s Strategy) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.conf[s] = clamp(cs.conf[s] * (1 - learningRate))
}

// Snapshot returns the current ratings keyed by strategy name, suitable
// for persisting between sessions.
func (cs *ConfidenceStore) Snapshot() map[string]float64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]float64, len(cs.conf))
	for s, c := range cs.conf {
		out[s.String()] = c
	}
	return out
}

// Restore loads previously persisted ratings. Unknown strategy names
// are ignored; values are clamped into the valid range.
func (cs *ConfidenceStore) Restore(saved map[string]float64) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for name, c := range saved {
		s, ok := strategyFromName(name)
		if !ok {
			continue
		}
		cs.conf[s] = clamp(c)
	}
}

func clamp(c float64) float64 {
	if c < minConfidence {
		return minConfidence
	}
	if c > maxConfidence {
		return maxConfidence
	}
	return c
}
