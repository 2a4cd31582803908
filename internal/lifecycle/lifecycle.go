// Package lifecycle tracks process state that /health reports.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// State is shared between main and the health handler.
type State struct {
	shuttingDown atomic.Bool
	started      time.Time
	now          func() time.Time
}

// New returns a State whose uptime counts from now.
func New() *State {
	return &State{started: time.Now(), now: time.Now}
}

// BeginShutdown marks the process as draining. It reports whether this call
// made the transition, so signal handlers can ignore repeats.
func (s *State) BeginShutdown() bool {
	return s.shuttingDown.CompareAndSwap(false, true)
}

// ShuttingDown is true once BeginShutdown was called. Health returns 503 while true.
func (s *State) ShuttingDown() bool {
	return s.shuttingDown.Load()
}

// Uptime is the time since New.
func (s *State) Uptime() time.Duration {
	return s.now().Sub(s.started)
}
