package deployment

import "sync"

// LockManager hands out one non-blocking lock per deploy target.
//
// The outer mutex only guards the map; each target has its own mutex, so
// targets never wait on each other.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockManager creates a new lock manager
func NewLockManager() *LockManager {
	return &LockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

// TryLock acquires the lock for target without blocking. It returns false
// when a deploy of target already holds it.
func (lm *LockManager) TryLock(target string) bool {
	lm.mu.Lock()
	lock, exists := lm.locks[target]
	if !exists {
		lock = &sync.Mutex{}
		lm.locks[target] = lock
	}
	lm.mu.Unlock()

	return lock.TryLock()
}

// Unlock releases the lock for target. Unknown targets are ignored.
func (lm *LockManager) Unlock(target string) {
	lm.mu.Lock()
	lock := lm.locks[target]
	lm.mu.Unlock()

	if lock != nil {
		lock.Unlock()
	}
}
