package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrBackendUnavailable wraps every counter store failure.
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
	// ErrInvalidArgument is returned for a non-positive cost, max or window, or an empty key.
	ErrInvalidArgument = errors.New("invalid rate limit argument")
)

// Result is the outcome of one Consume call.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// RetryAfter returns the whole seconds until ResetAt, rounded up and never below 1.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(r.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Store is a fixed-window counter store.
type Store interface {
	// Consume charges cost against key's bucket.
	Consume(ctx context.Context, key string, cost, max int, window time.Duration) (Result, error)
	// Backend names the store for metrics and logs.
	Backend() string
}

func validate(key string, cost, max int, window time.Duration) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty key", ErrInvalidArgument)
	case cost <= 0:
		return fmt.Errorf("%w: cost must be positive, got %d", ErrInvalidArgument, cost)
	case max <= 0:
		return fmt.Errorf("%w: max must be positive, got %d", ErrInvalidArgument, max)
	case window <= 0:
		return fmt.Errorf("%w: window must be positive, got %s", ErrInvalidArgument, window)
	}
	return nil
}
