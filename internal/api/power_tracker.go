package api

import "sync"

// powerTracker records machines with an outstanding power action so a
// second action can be refused instead of racing the first. Tracking is
// per-process; the rack's driver enforces the same rule authoritatively.
type powerTracker struct {
	mu       sync.Mutex
	inFlight map[string]bool
}

func newPowerTracker() *powerTracker {
	return &powerTracker{inFlight: make(map[string]bool)}
}

// Begin marks a power action in flight for systemID. Returns false when
// one is already outstanding.
func (t *powerTracker) Begin(systemID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inFlight[systemID] {
		return false
	}
	t.inFlight[systemID] = true
	return true
}

// End clears the in-flight mark for systemID.
func (t *powerTracker) End(systemID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inFlight, systemID)
}
