// Package ratelimit throttles spend attempts per account subject using a
// fixed one-second window, in memory or in Redis.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a spend throttle check.
type Decision struct {
	Allowed   bool      // Whether the spend attempt may proceed.
	Remaining int       // Attempts left in the current window.
	RetryAt   time.Time // When the window resets.
}

// backend takes one slot from a subject's current window.
type backend interface {
	Take(ctx context.Context, subject string, limit int, now time.Time) (Decision, error)
}
