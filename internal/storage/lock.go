package storage

import "sync"

// lockTable hands out one mutex per file path so writers to the same key
// serialize while distinct keys proceed independently. Locking is
// in-process only: the state directory is owned by a single control
// instance, and the injected filesystem may not be the OS one anyway.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

// get returns the lock for a path, creating it on first use.
func (t *lockTable) get(path string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[path] = lock
	}

	return lock
}
