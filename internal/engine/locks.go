package engine

import "sync"

// keyedMutex serializes mutating operations per session id while
// leaving unrelated sessions free to proceed. Entries are reference
// counted so the map does not grow with dead session ids.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*lockEntry)}
}

// Lock blocks until the per-key lock is held and returns the unlock
// function. The unlock function must be called on every exit path.
func (k *keyedMutex) Lock(id string) func() {
	k.mu.Lock()
	entry, ok := k.entries[id]
	if !ok {
		entry = &lockEntry{}
		k.entries[id] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, id)
		}
		k.mu.Unlock()
	}
}
