package schedule

import "sync"

// LockTable hands out one mutex per window ID. Every path that reads
// remaining capacity and then writes (hold creation, booking commit, status
// transitions, the reaper) must run its check-then-act under the window's
// lock, so the check cannot go stale between the read and the write.
type LockTable struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the mutex for windowID and returns its unlock func.
func (t *LockTable) Lock(windowID int64) func() {
	t.mu.Lock()
	l, ok := t.locks[windowID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[windowID] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Forget drops the mutex for a removed window. Holders that already acquired
// it keep a valid reference; new callers get a fresh one.
func (t *LockTable) Forget(windowID int64) {
	t.mu.Lock()
	delete(t.locks, windowID)
	t.mu.Unlock()
}
