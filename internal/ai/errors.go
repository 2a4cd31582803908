package ai

import (
	"errors"
	"fmt"
	"time"
)

// ErrToolRoundsExhausted is returned when the model keeps requesting tools
// past the round cap without producing text.
var ErrToolRoundsExhausted = errors.New("tool call rounds exhausted")

// ErrEmptyResponse is wrapped in a ModelError when the model returns neither text nor tool calls.
var ErrEmptyResponse = errors.New("empty model response")

// QuotaError reports that the provider rejected the call for rate or quota
// reasons. RetryAfter is the provider's suggested delay, zero if none was given.
type QuotaError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *QuotaError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("model quota exceeded (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("model quota exceeded: %v", e.Err)
}

func (e *QuotaError) Unwrap() error {
	return e.Err
}

// ModelError is any other generation failure.
type ModelError struct {
	Err error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model error: %v", e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// IsQuota reports whether err is, or wraps, a *QuotaError.
func IsQuota(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}
