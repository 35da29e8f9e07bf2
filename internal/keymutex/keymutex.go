package keymutex

import "sync"

// entry is a mutex shared by the holders and waiters of one key.
type entry struct {
	// mu serializes holders of the key.
	mu sync.Mutex
	// refs counts holders and waiters; the entry is dropped at zero.
	refs int
}

// KeyedMutex locks by key. The zero value is ready to use.
type KeyedMutex struct {
	// mu protects entries.
	mu sync.Mutex
	// entries maps keys to their mutex while in use.
	entries map[string]*entry
}

// Lock blocks until key is free and returns the function releasing it.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()

	if k.entries == nil {
		k.entries = make(map[string]*entry)
	}

	e, ok := k.entries[key]
	if !ok {
		e = new(entry)
		k.entries[key] = e
	}

	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	var once sync.Once

	return func() {
		once.Do(func() {
			e.mu.Unlock()

			k.mu.Lock()
			e.refs--

			if e.refs == 0 {
				delete(k.entries, key)
			}

			k.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return len(k.entries)
}
