package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrQueueFull     = errors.New("queue full")
	ErrConflict      = errors.New("conflicting trade in flight")
	ErrStopped       = errors.New("scheduler stopped")
	ErrUnknownVenue  = errors.New("unknown venue")
	ErrRateLimited   = errors.New("rate limited")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrContextDone   = errors.New("context cancelled")
	ErrNotPending    = errors.New("proposal not pending approval")
	ErrStaleQuote    = errors.New("quote too old")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// VenueError wraps a failure from a venue API call. Retryable distinguishes
// transient faults (timeouts, 5xx, rate limits) from permanent rejections
// (bad symbol, insufficient balance).
type VenueError struct {
	Venue     string
	Op        string
	Retryable bool
	Err       error
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("venue %s: %s: %v", e.Venue, e.Op, e.Err)
}

func (e *VenueError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a venue error marked retryable.
func IsRetryable(err error) bool {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve.Retryable
	}
	return false
}
