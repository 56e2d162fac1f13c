package registry

import (
	"context"
	"errors"
	"fmt"
)

// ScrapeError represents a navigation or in-page evaluation failure.
type ScrapeError struct {
	URL     string
	Message string
	Cause   error
}

func (e *ScrapeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("scrape error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("scrape error for %s: %s", e.URL, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether a failed attempt is worth repeating.
// Cancellation and deadline errors are final; any other scrape failure is
// treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
