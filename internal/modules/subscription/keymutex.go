package subscription

import "sync"

// keyMutex hands out one mutex per key so that read-then-write sequences on
// the same email or token form a critical section without serializing
// unrelated keys. Entries are created on demand and dropped when the last
// holder releases them.
type keyMutex struct {
	mu      sync.Mutex
	entries map[string]*keyMutexEntry
}

type keyMutexEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyMutex() *keyMutex {
	return &keyMutex{entries: make(map[string]*keyMutexEntry)}
}

// Lock acquires the mutex for key and returns its release func.
func (k *keyMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyMutexEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
