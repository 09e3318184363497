package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"slotnik/internal/clock"
	"slotnik/internal/domain"
	"slotnik/internal/models"
	"slotnik/internal/schedule"

	"github.com/rs/zerolog"
)

// AvailabilityService owns the admin surface on windows and calendar blocks
// and serves capacity snapshots for the storefront. Window mutations go
// through the interval index first so the no-overlap invariant is enforced
// in one critical section, then persist.
type AvailabilityService struct {
	store   domain.Store
	index   *schedule.Index
	locks   *schedule.LockTable
	tracker *schedule.CapacityTracker
	clock   clock.Clock
	logger  *zerolog.Logger

	windowMu sync.Mutex
	blockMu  sync.Mutex
}

func NewAvailabilityService(store domain.Store, index *schedule.Index, locks *schedule.LockTable, tracker *schedule.CapacityTracker, clk clock.Clock, logger *zerolog.Logger) *AvailabilityService {
	return &AvailabilityService{
		store:   store,
		index:   index,
		locks:   locks,
		tracker: tracker,
		clock:   clk,
		logger:  logger,
	}
}

// AddWindow validates, persists and indexes a new availability window.
func (s *AvailabilityService) AddWindow(ctx context.Context, w *models.AvailabilityWindow) error {
	if err := w.Range.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if w.ServiceType == "" || w.LocationType == "" {
		return fmt.Errorf("%w: service_type and location_type are required", domain.ErrValidation)
	}
	if w.Capacity < 1 {
		return fmt.Errorf("%w: capacity must be at least 1", domain.ErrValidation)
	}

	s.windowMu.Lock()
	defer s.windowMu.Unlock()

	// Сначала проверка пересечения, потом запись: windowMu сериализует
	// конкурирующих админов.
	for _, other := range s.index.Overlapping(w.ServiceType, w.LocationType, w.Range) {
		return fmt.Errorf("%w: window %d", domain.ErrWindowOverlap, other.ID)
	}

	if err := s.store.CreateWindow(ctx, w); err != nil {
		return err
	}
	if err := s.index.Add(w); err != nil {
		// Не должно случаться под windowMu; откатываем запись.
		if delErr := s.store.DeleteWindow(ctx, w.ID); delErr != nil {
			s.logger.Error().Err(delErr).Int64("window_id", w.ID).Msg("failed to roll back window insert")
		}
		return err
	}
	s.tracker.SetTotal(w.ID, w.Capacity)

	s.logger.Info().
		Int64("window_id", w.ID).
		Str("service_type", w.ServiceType).
		Str("location_type", w.LocationType).
		Int("capacity", w.Capacity).
		Msg("availability window added")
	return nil
}

// UpdateWindow replaces an existing window's key, range, capacity or open
// flag. Runs under the window's own lock so a capacity change cannot race a
// booking commit on the same window.
func (s *AvailabilityService) UpdateWindow(ctx context.Context, w *models.AvailabilityWindow) error {
	if err := w.Range.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if w.ServiceType == "" || w.LocationType == "" {
		return fmt.Errorf("%w: service_type and location_type are required", domain.ErrValidation)
	}
	if w.Capacity < 1 {
		return fmt.Errorf("%w: capacity must be at least 1", domain.ErrValidation)
	}

	s.windowMu.Lock()
	defer s.windowMu.Unlock()

	existing := s.index.Get(w.ID)
	if existing == nil {
		return fmt.Errorf("%w: window %d", domain.ErrNotFound, w.ID)
	}
	for _, other := range s.index.Overlapping(w.ServiceType, w.LocationType, w.Range) {
		if other.ID != w.ID {
			return fmt.Errorf("%w: window %d", domain.ErrWindowOverlap, other.ID)
		}
	}

	unlock := s.locks.Lock(w.ID)
	defer unlock()

	if err := s.store.UpdateWindow(ctx, w); err != nil {
		return err
	}
	s.index.Remove(w.ID)
	if err := s.index.Add(w); err != nil {
		// Не должно случаться под windowMu; возвращаем старую запись.
		_ = s.index.Add(existing)
		return err
	}
	s.tracker.SetTotal(w.ID, w.Capacity)

	s.logger.Info().
		Int64("window_id", w.ID).
		Int("capacity", w.Capacity).
		Bool("is_open", w.IsOpen).
		Msg("availability window updated")
	return nil
}

// RemoveWindow drops a window from storage, index, tracker and lock table.
func (s *AvailabilityService) RemoveWindow(ctx context.Context, id int64) error {
	s.windowMu.Lock()
	defer s.windowMu.Unlock()

	if err := s.store.DeleteWindow(ctx, id); err != nil {
		return err
	}
	s.index.Remove(id)
	s.tracker.Remove(id)
	s.locks.Forget(id)

	s.logger.Info().Int64("window_id", id).Msg("availability window removed")
	return nil
}

// ListWindows returns the indexed windows, grouped by key in start order.
func (s *AvailabilityService) ListWindows() []*models.AvailabilityWindow {
	return s.index.All()
}

// AddBlock persists a calendar block after checking the same-scope overlap
// invariant under the block mutex.
func (s *AvailabilityService) AddBlock(ctx context.Context, b *models.CalendarBlock) error {
	if err := b.Range.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	s.blockMu.Lock()
	defer s.blockMu.Unlock()

	overlap, err := s.store.HasBlockScopeOverlap(ctx, b.Scope, b.Range)
	if err != nil {
		return err
	}
	if overlap {
		return domain.ErrBlockOverlap
	}

	if err := s.store.CreateBlock(ctx, b); err != nil {
		return err
	}

	s.logger.Info().
		Int64("block_id", b.ID).
		Str("scope", b.Scope).
		Str("reason", b.Reason).
		Msg("calendar block added")
	return nil
}

func (s *AvailabilityService) RemoveBlock(ctx context.Context, id int64) error {
	if err := s.store.DeleteBlock(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("block_id", id).Msg("calendar block removed")
	return nil
}

func (s *AvailabilityService) ListBlocks(ctx context.Context) ([]*models.CalendarBlock, error) {
	return s.store.ListBlocks(ctx)
}

// Snapshots returns the derived capacity view for every window of the
// service's key intersecting [from, to).
func (s *AvailabilityService) Snapshots(ctx context.Context, serviceID int64, from, to time.Time) ([]*models.CapacitySnapshot, error) {
	svc, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	r := models.NewTimeRange(from, to)
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	windows := s.index.Overlapping(svc.ServiceType, svc.LocationType, r)
	snapshots := make([]*models.CapacitySnapshot, 0, len(windows))
	for _, w := range windows {
		snap, ok := s.tracker.Snapshot(w.ID)
		if !ok {
			// Трекер ещё не знает окно: считаем по хранилищу.
			used, err := s.usedFromStorage(ctx, w)
			if err != nil {
				return nil, err
			}
			snap = models.CapacitySnapshot{WindowID: w.ID, Total: w.Capacity, Used: used, Remaining: w.Capacity - used}
		}
		snapshots = append(snapshots, &snap)
	}
	return snapshots, nil
}

func (s *AvailabilityService) usedFromStorage(ctx context.Context, w *models.AvailabilityWindow) (int, error) {
	bookingSum, err := s.store.SumBookingCapacity(ctx, w.ServiceType, w.LocationType, w.Range)
	if err != nil {
		return 0, err
	}
	holdSum, err := s.store.SumHoldCapacity(ctx, w.ServiceType, w.LocationType, w.Range, s.clock.Now(), "")
	if err != nil {
		return 0, err
	}
	return bookingSum + holdSum, nil
}

// Rebuild reloads the index and the tracker from storage. Run at startup
// before the engine takes traffic.
func (s *AvailabilityService) Rebuild(ctx context.Context) error {
	windows, err := s.store.ListWindows(ctx)
	if err != nil {
		return err
	}
	if err := s.index.Rebuild(windows); err != nil {
		return err
	}
	for _, w := range windows {
		used, err := s.usedFromStorage(ctx, w)
		if err != nil {
			return err
		}
		s.tracker.SetTotal(w.ID, w.Capacity)
		s.tracker.SetUsed(w.ID, used)
	}
	s.logger.Info().Int("windows", len(windows)).Msg("schedule rebuilt from storage")
	return nil
}
