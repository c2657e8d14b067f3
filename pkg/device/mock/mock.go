// Package mock provides an in-memory device transport for testing
// without a real device.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TapCall records the arguments of a single Tap invocation.
type TapCall struct {
	SessionID string
	X, Y      int
	At        time.Time
}

// Config configures mock transport behavior.
type Config struct {
	// Trees are served to FetchUITree in order; the last entry repeats
	// once the script runs out.
	Trees []string
	// FailOnTap makes tap N fail (1-indexed). 0 = never fail.
	FailOnTap int
	// FailFetches makes the first N tree fetches fail before
	// succeeding, to exercise retry behavior.
	FailFetches int
	// TapDelay adds artificial latency per tap.
	TapDelay time.Duration
}

// Transport is a scripted in-memory device session.
type Transport struct {
	Config Config

	mu         sync.Mutex
	fetchCount int
	tapCount   int
	taps       []TapCall
}

// New creates a mock transport.
func New(cfg Config) *Transport {
	return &Transport{Config: cfg}
}

// FetchUITree serves the next scripted tree.
func (t *Transport) FetchUITree(ctx context.Context, sessionID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.fetchCount++
	if t.fetchCount <= t.Config.FailFetches {
		return "", fmt.Errorf("mock fetch failure %d", t.fetchCount)
	}
	if len(t.Config.Trees) == 0 {
		return "", fmt.Errorf("mock transport has no trees configured")
	}

	idx := t.fetchCount - t.Config.FailFetches - 1
	if idx >= len(t.Config.Trees) {
		idx = len(t.Config.Trees) - 1
	}
	return t.Config.Trees[idx], nil
}

// Tap records the call and fails when scripted to.
func (t *Transport) Tap(ctx context.Context, sessionID string, x, y int) error {
	if t.Config.TapDelay > 0 {
		select {
		case <-time.After(t.Config.TapDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.tapCount++
	t.taps = append(t.taps, TapCall{SessionID: sessionID, X: x, Y: y, At: time.Now()})
	if t.Config.FailOnTap > 0 && t.tapCount == t.Config.FailOnTap {
		return fmt.Errorf("mock tap failure %d", t.tapCount)
	}
	return nil
}

// Taps returns a copy of every recorded tap.
func (t *Transport) Taps() []TapCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TapCall, len(t.taps))
	copy(out, t.taps)
	return out
}

// FetchCount returns how many tree fetches were attempted.
func (t *Transport) FetchCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fetchCount
}
