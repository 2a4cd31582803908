package http

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/kjstillabower/weather-chat-assistant/internal/observability"
)

// InFlightTracker counts requests currently being served. main waits on it
// during graceful shutdown so chats that are mid-generation can finish.
type InFlightTracker struct {
	count atomic.Int64
}

// Middleware counts the request for its whole duration and mirrors the count
// into the in-flight gauge.
func (t *InFlightTracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.count.Add(1)
		observability.HTTPRequestsInFlight.Inc()
		defer func() {
			t.count.Add(-1)
			observability.HTTPRequestsInFlight.Dec()
		}()
		next.ServeHTTP(w, r)
	})
}

// Count returns the current in-flight count.
func (t *InFlightTracker) Count() int64 {
	return t.count.Load()
}

// WaitForZero blocks until the in-flight count reaches zero or ctx is cancelled.
// checkInterval is how often to re-check the count.
func (t *InFlightTracker) WaitForZero(ctx context.Context, checkInterval time.Duration) error {
	if checkInterval <= 0 {
		checkInterval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		if t.Count() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
