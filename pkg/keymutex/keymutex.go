// Package keymutex provides per-key mutual exclusion. The lock manager
// serializes hold/confirm/release per lock target with it, and the matching
// orchestrator serializes matching passes per booking.
package keymutex

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyMutex hands out a mutex per string key. Entries are reference-counted
// and removed once the last holder unlocks, so the map does not grow with
// the keyspace.
type KeyMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *KeyMutex {
	return &KeyMutex{
		entries: make(map[string]*entry),
	}
}

func (km *KeyMutex) Lock(key string) {
	km.mu.Lock()
	e, ok := km.entries[key]
	if !ok {
		e = &entry{}
		km.entries[key] = e
	}
	e.refs++
	km.mu.Unlock()

	e.mu.Lock()
}

func (km *KeyMutex) Unlock(key string) {
	km.mu.Lock()
	e, ok := km.entries[key]
	if !ok {
		km.mu.Unlock()
		panic("keymutex: unlock of unheld key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(km.entries, key)
	}
	km.mu.Unlock()

	e.mu.Unlock()
}

// TryLock acquires the key's mutex without blocking. It reports whether the
// lock was taken.
func (km *KeyMutex) TryLock(key string) bool {
	km.mu.Lock()
	e, ok := km.entries[key]
	if !ok {
		e = &entry{}
		km.entries[key] = e
	}
	if !e.mu.TryLock() {
		km.mu.Unlock()
		return false
	}
	e.refs++
	km.mu.Unlock()
	return true
}
