package deployment

import (
	"fmt"

	"github.com/gofrs/flock"
)

// HostLock is an advisory file lock shared by every kryodeploy process on
// the host, so two instances never deploy the same working tree at once.
type HostLock struct {
	lock *flock.Flock
}

// NewHostLock returns a lock backed by the file at path.
func NewHostLock(path string) *HostLock {
	return &HostLock{lock: flock.New(path)}
}

// TryLock acquires the lock without blocking.
func (h *HostLock) TryLock() (bool, error) {
	ok, err := h.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire host lock %s: %w", h.lock.Path(), err)
	}
	return ok, nil
}

// Unlock releases the lock.
func (h *HostLock) Unlock() error {
	return h.lock.Unlock()
}

// Path is the lock file location.
func (h *HostLock) Path() string {
	return h.lock.Path()
}
