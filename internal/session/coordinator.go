package session

import (
	"errors"
	"sync"
)

// ErrSaveInProgress rejects a save issued while another one is in flight.
// The second call is refused immediately, never queued or silently dropped.
var ErrSaveInProgress = errors.New("save already in progress")

// ErrSessionClosed rejects operations on a closed capture session.
var ErrSessionClosed = errors.New("session closed")

// ErrCloseWhileSaving rejects closing the session while a save is in flight;
// a save is not cancellable once initiated.
var ErrCloseWhileSaving = errors.New("cannot close while a save is in flight")

// coordinator guarantees at most one persistence call in flight per session.
type coordinator struct {
	mu       sync.Mutex
	inFlight bool
}

// begin claims the in-flight slot. Returns false when a save is already
// running.
func (c *coordinator) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return false
	}
	c.inFlight = true
	return true
}

func (c *coordinator) done() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

func (c *coordinator) busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}
