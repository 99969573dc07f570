package custom_errors

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrNotFound marks a permanent miss. Jobs hitting it fail without retry.
	ErrNotFound = errors.New("not found")

	// ErrPermanent marks failures that retrying cannot fix.
	ErrPermanent = errors.New("permanent failure")

	// ErrTriggerTimeout means the trigger endpoint did not answer in time.
	// The request was probably accepted, so the generation keeps processing.
	ErrTriggerTimeout = errors.New("trigger call timed out")

	// ErrRateLimited is returned when a requestor exceeded its request budget.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// TriggerFailureError is an explicit non-success answer from the trigger endpoint,
// after every attempt was spent.
type TriggerFailureError struct {
	StatusCode int
	Body       string
	Attempts   int
	Err        error
}

func (e *TriggerFailureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("trigger failed after %d attempt(s): %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("trigger failed after %d attempt(s): status %d: %s", e.Attempts, e.StatusCode, e.Body)
}

func (e *TriggerFailureError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so errors.Is(err, ErrPermanent) holds while keeping the original message.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsPermanent reports whether a job failing with err should skip the retry budget.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrPermanent)
}

// Truncate bounds text persisted to storage. It cuts on a rune boundary.
func Truncate(msg string, max int) string {
	if len(msg) <= max {
		return msg
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

// Message is the storable form of err, truncated to limit.
func Message(err error, limit int) string {
	if err == nil {
		return ""
	}
	return Truncate(err.Error(), limit)
}
