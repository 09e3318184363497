// Package schedule keeps the in-memory view of availability windows: a
// per-key interval index for O(log n) lookups and the per-window mutex table
// that serializes every capacity decision.
package schedule

import (
	"fmt"
	"sort"
	"sync"

	"slotnik/internal/domain"
	"slotnik/internal/models"
)

// Key identifies one independent schedule: windows for different keys never
// interact.
func Key(serviceType, locationType string) string {
	return serviceType + "/" + locationType
}

// Index holds availability windows sorted by start per (service type,
// location type) key. Since same-key windows never overlap, a sorted slice
// with binary search is enough.
type Index struct {
	mu   sync.RWMutex
	keys map[string][]*models.AvailabilityWindow
	byID map[int64]*models.AvailabilityWindow
}

func NewIndex() *Index {
	return &Index{
		keys: make(map[string][]*models.AvailabilityWindow),
		byID: make(map[int64]*models.AvailabilityWindow),
	}
}

// Add inserts a window, rejecting any overlap with an existing window of the
// same key. The check and the insert happen under one lock so two concurrent
// admins cannot both slip in overlapping windows.
func (idx *Index) Add(w *models.AvailabilityWindow) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := Key(w.ServiceType, w.LocationType)
	windows := idx.keys[key]

	pos := sort.Search(len(windows), func(i int) bool {
		return !windows[i].Range.Start.Before(w.Range.Start)
	})

	// Сосед слева и сосед справа, больше проверять нечего.
	if pos > 0 && windows[pos-1].Range.Overlaps(w.Range) {
		return fmt.Errorf("%w: window %d", domain.ErrWindowOverlap, windows[pos-1].ID)
	}
	if pos < len(windows) && windows[pos].Range.Overlaps(w.Range) {
		return fmt.Errorf("%w: window %d", domain.ErrWindowOverlap, windows[pos].ID)
	}

	windows = append(windows, nil)
	copy(windows[pos+1:], windows[pos:])
	windows[pos] = w
	idx.keys[key] = windows
	if w.ID != 0 {
		idx.byID[w.ID] = w
	}
	return nil
}

// Remove drops a window by ID. Missing IDs are ignored.
func (idx *Index) Remove(id int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	w, ok := idx.byID[id]
	if !ok {
		return
	}
	delete(idx.byID, id)

	key := Key(w.ServiceType, w.LocationType)
	windows := idx.keys[key]
	for i, cand := range windows {
		if cand.ID == id {
			idx.keys[key] = append(windows[:i], windows[i+1:]...)
			break
		}
	}
}

// Get returns the window by ID, or nil.
func (idx *Index) Get(id int64) *models.AvailabilityWindow {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.byID[id]
}

// Covering returns the single open window that fully contains r for the key,
// or nil. Because same-key windows never overlap, a range contained in the
// schedule is contained in exactly one window.
func (idx *Index) Covering(serviceType, locationType string, r models.TimeRange) *models.AvailabilityWindow {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	windows := idx.keys[Key(serviceType, locationType)]
	pos := sort.Search(len(windows), func(i int) bool {
		return windows[i].Range.End.After(r.Start)
	})
	if pos == len(windows) {
		return nil
	}
	w := windows[pos]
	if w.IsOpen && w.Range.Contains(r) {
		return w
	}
	return nil
}

// Overlapping returns every window of the key that intersects r, open or not,
// in start order. Used for capacity snapshots.
func (idx *Index) Overlapping(serviceType, locationType string, r models.TimeRange) []*models.AvailabilityWindow {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	windows := idx.keys[Key(serviceType, locationType)]
	pos := sort.Search(len(windows), func(i int) bool {
		return windows[i].Range.End.After(r.Start)
	})

	var out []*models.AvailabilityWindow
	for ; pos < len(windows); pos++ {
		if !windows[pos].Range.Start.Before(r.End) {
			break
		}
		out = append(out, windows[pos])
	}
	return out
}

// Rebuild replaces the whole index from persisted windows, e.g. at startup.
func (idx *Index) Rebuild(windows []*models.AvailabilityWindow) error {
	fresh := NewIndex()
	for _, w := range windows {
		if err := fresh.Add(w); err != nil {
			return err
		}
	}

	idx.mu.Lock()
	idx.keys = fresh.keys
	idx.byID = fresh.byID
	idx.mu.Unlock()
	return nil
}

// All returns every indexed window grouped by key, each group in start order.
func (idx *Index) All() []*models.AvailabilityWindow {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	keys := make([]string, 0, len(idx.keys))
	for k := range idx.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*models.AvailabilityWindow, 0, len(idx.byID))
	for _, k := range keys {
		out = append(out, idx.keys[k]...)
	}
	return out
}

// Len returns the number of indexed windows.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byID)
}
