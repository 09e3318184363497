package schedule

import (
	"sync"

	"slotnik/internal/models"
)

// CapacityTracker keeps the in-memory used-capacity counter per window. It is
// a cache over the storage sums, adjusted inside the same locked unit of work
// as every hold/booking change, so a snapshot never needs a storage round trip.
// The reaper reconciles it against storage sums to absorb drift.
type CapacityTracker struct {
	mu     sync.RWMutex
	totals map[int64]int
	used   map[int64]int
}

func NewCapacityTracker() *CapacityTracker {
	return &CapacityTracker{
		totals: make(map[int64]int),
		used:   make(map[int64]int),
	}
}

// SetTotal registers (or updates) a window's total capacity.
func (t *CapacityTracker) SetTotal(windowID int64, total int) {
	t.mu.Lock()
	t.totals[windowID] = total
	t.mu.Unlock()
}

// SetUsed overwrites the used counter, e.g. on rebuild or reconcile.
func (t *CapacityTracker) SetUsed(windowID int64, used int) {
	t.mu.Lock()
	t.used[windowID] = used
	t.mu.Unlock()
}

// Adjust shifts the used counter by delta, clamping at zero.
func (t *CapacityTracker) Adjust(windowID int64, delta int) {
	t.mu.Lock()
	u := t.used[windowID] + delta
	if u < 0 {
		u = 0
	}
	t.used[windowID] = u
	t.mu.Unlock()
}

// Remove forgets a window entirely.
func (t *CapacityTracker) Remove(windowID int64) {
	t.mu.Lock()
	delete(t.totals, windowID)
	delete(t.used, windowID)
	t.mu.Unlock()
}

// Snapshot returns the derived capacity view for a window. The second return
// is false for windows the tracker does not know.
func (t *CapacityTracker) Snapshot(windowID int64) (models.CapacitySnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	total, ok := t.totals[windowID]
	if !ok {
		return models.CapacitySnapshot{}, false
	}
	used := t.used[windowID]
	return models.CapacitySnapshot{
		WindowID:  windowID,
		Total:     total,
		Used:      used,
		Remaining: total - used,
	}, true
}
