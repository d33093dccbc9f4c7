package registry

import (
	"sync"

	"github.com/compose-network/rollup-job-handler/internal/rollup"
)

type (
	keyedLocks struct {
		mu    sync.Mutex
		locks map[rollup.ID]*keyedLock
	}

	keyedLock struct {
		mu   sync.Mutex
		refs int
	}
)

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[rollup.ID]*keyedLock)}
}

// acquire blocks until the caller holds the lock for id and returns its release func.
// Entries are dropped once nobody holds or waits on them.
func (k *keyedLocks) acquire(id rollup.ID) func() {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyedLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()

			k.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(k.locks, id)
			}
			k.mu.Unlock()
		})
	}
}

func (k *keyedLocks) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
