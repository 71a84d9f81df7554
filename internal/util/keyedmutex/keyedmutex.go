package keyedmutex

import "sync"

// KeyedMutex provides an exclusive lock per key so mutations of unrelated
// keys proceed concurrently. Entries are reference-counted and removed
// once the last holder releases, so the map never grows with dead keys.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New creates a new keyed mutex
func New() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

// Lock acquires the exclusive lock for key, blocking until available
func (k *KeyedMutex) Lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the exclusive lock for key
func (k *KeyedMutex) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		panic("keyedmutex: unlock of unheld key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}

// LockPair acquires both keys in a stable order to avoid deadlock when
// two operations need the same pair
func (k *KeyedMutex) LockPair(a, b string) {
	if a == b {
		k.Lock(a)
		return
	}
	if b < a {
		a, b = b, a
	}
	k.Lock(a)
	k.Lock(b)
}

// UnlockPair releases both keys
func (k *KeyedMutex) UnlockPair(a, b string) {
	if a == b {
		k.Unlock(a)
		return
	}
	if b < a {
		a, b = b, a
	}
	k.Unlock(b)
	k.Unlock(a)
}
