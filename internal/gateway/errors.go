package gateway

import "fmt"

// NotFoundError means every name strategy came back not-found.
type NotFoundError struct {
	City string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("city %q not found", e.City)
}

// ProviderError wraps any other provider failure: auth, rate limit, 5xx,
// transport, or a not-found on the coordinate path.
type ProviderError struct {
	Query string
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("weather provider error for %s: %v", e.Query, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
