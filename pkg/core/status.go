package core

// TapStatus represents the outcome of a single tap within a run
type TapStatus int

const (
	TapPending      TapStatus = iota // Not yet attempted
	TapExecuted                      // Tap was sent to the device
	TapFailed                        // Tap was attempted but the transport reported an error
	TapSkipped                       // Skipped because of an earlier failure with continue_on_error off
	TapLimited                       // Skipped because the session budget was exhausted
	TapNotResolved                   // Candidate disappeared after a refresh
)

// String returns the string representation of TapStatus
func (s TapStatus) String() string {
	switch s {
	case TapPending:
		return "pending"
	case TapExecuted:
		return "executed"
	case TapFailed:
		return "failed"
	case TapSkipped:
		return "skipped"
	case TapLimited:
		return "limited"
	case TapNotResolved:
		return "not_resolved"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the status is a final state
func (s TapStatus) IsTerminal() bool {
	return s != TapPending
}

// IsSuccess returns true if the tap reached the device
func (s TapStatus) IsSuccess() bool {
	return s == TapExecuted
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone      ErrorCategory = iota // No error
	ErrCategoryMatching                       // No candidates, no valid match, ambiguous match
	ErrCategoryInput                          // Malformed bounds, locator or fingerprint
	ErrCategoryNormalize                      // Structural normalization failed
	ErrCategoryTransport                      // Device tree fetch or tap failed
	ErrCategoryConfig                         // Invalid configuration, missing required field
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryMatching:
		return "matching"
	case ErrCategoryInput:
		return "input"
	case ErrCategoryNormalize:
		return "normalize"
	case ErrCategoryTransport:
		return "transport"
	case ErrCategoryConfig:
		return "config"
	default:
		return "unknown"
	}
}
