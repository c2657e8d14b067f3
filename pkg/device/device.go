// Package device defines the transport boundary between the resolution
// pipeline and a concrete device session. Implementations live outside
// the pipeline; the pipeline only fetches tree snapshots and taps.
package device

import (
	"context"
)

// Transport is the device collaborator consumed by the pipeline. Both
// calls are blocking and honor context cancellation and deadlines.
type Transport interface {
	// FetchUITree returns a serialized UI hierarchy snapshot for the
	// session.
	FetchUITree(ctx context.Context, sessionID string) (string, error)

	// Tap issues a physical tap at screen coordinates.
	Tap(ctx context.Context, sessionID string, x, y int) error
}
