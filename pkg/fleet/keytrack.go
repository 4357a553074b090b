package fleet

import "sync"

// KeyTracker exposes "an operation is in flight for this key" to observers.
// It does not serialize or queue: a second Run for a live key still executes
// its operation and takes over the in-flight marker, so the busy flag follows
// the most recently registered operation. An older operation finishing does
// not clear a marker it no longer owns.
type KeyTracker struct {
	mu   sync.RWMutex
	gen  map[string]uint64
	next uint64
}

func NewKeyTracker() *KeyTracker {
	return &KeyTracker{gen: make(map[string]uint64)}
}

// Run registers key, executes op, and clears the registration when op settles
// (success or failure) if this call still owns it. The op's error is returned
// unchanged; nothing is retried.
func (t *KeyTracker) Run(key string, op func() error) error {
	t.mu.Lock()
	t.next++
	id := t.next
	t.gen[key] = id
	t.mu.Unlock()

	err := op()

	t.mu.Lock()
	if t.gen[key] == id {
		delete(t.gen, key)
	}
	t.mu.Unlock()
	return err
}

// InFlight reports whether an operation is currently registered for key.
func (t *KeyTracker) InFlight(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.gen[key]
	return ok
}

// Busy returns a copy of the current key set as a name -> true map.
func (t *KeyTracker) Busy() map[string]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]bool, len(t.gen))
	for k := range t.gen {
		out[k] = true
	}
	return out
}
