package engine

import "sync"

// projectLocks serializes mutations per project id. Two accepts racing for a
// project's last open slot must not both pass the capacity check.
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newProjectLocks() *projectLocks {
	return &projectLocks{locks: map[string]*sync.Mutex{}}
}

// acquire blocks until the project lock is held and returns the unlock func.
func (l *projectLocks) acquire(projectID string) func() {
	l.mu.Lock()
	pl, ok := l.locks[projectID]
	if !ok {
		pl = &sync.Mutex{}
		l.locks[projectID] = pl
	}
	l.mu.Unlock()
	pl.Lock()
	return pl.Unlock
}
