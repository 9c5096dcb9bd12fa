// Package policy decides, for a stream of server status reports, which
// reports become outward notifications, who receives them, and how often.
//
// Flow: classify the transition → apply it to the stored state → check each
// subscriber's opt-in and throttle → render the message.
// Everything here is pure; persistence and delivery live in the callers.
package policy

import "time"

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	// DefaultThrottleWindow caps throttled subscribers to one message.
	DefaultThrottleWindow = 24 * time.Hour

	// DefaultStaleAfter is how long an empty server sits before the sweep
	// refreshes it.
	DefaultStaleAfter = 24 * time.Hour
)
