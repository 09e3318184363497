package service

import (
	"context"
	"fmt"

	"slotnik/internal/clock"
	"slotnik/internal/domain"
	"slotnik/internal/models"
	"slotnik/internal/schedule"
)

// CheckResult carries the covering window and the capacity already consumed
// over the candidate range when the check passed.
type CheckResult struct {
	Window   *models.AvailabilityWindow
	Consumed int
}

// ConflictChecker answers whether a candidate range can take more capacity.
// It is read-only and its answer goes stale the moment the window lock is
// released; writers always re-run it inside their critical section.
type ConflictChecker struct {
	store domain.Store
	index *schedule.Index
	clock clock.Clock
}

func NewConflictChecker(store domain.Store, index *schedule.Index, clk clock.Clock) *ConflictChecker {
	return &ConflictChecker{store: store, index: index, clock: clk}
}

// Check validates the range against the schedule in precedence order: no
// covering open window, then blocks, then capacity. excludeHoldID skips a
// hold that is about to be consumed so it is not counted against itself.
func (c *ConflictChecker) Check(ctx context.Context, serviceType, locationType string, r models.TimeRange, requested int, excludeHoldID string) (*CheckResult, error) {
	window := c.index.Covering(serviceType, locationType, r)
	if window == nil {
		return nil, domain.ErrOutsideAvailability
	}

	blocked, err := c.store.HasBlockOverlap(ctx, locationType, r)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, domain.ErrBlocked
	}

	bookingSum, err := c.store.SumBookingCapacity(ctx, serviceType, locationType, r)
	if err != nil {
		return nil, err
	}
	holdSum, err := c.store.SumHoldCapacity(ctx, serviceType, locationType, r, c.clock.Now(), excludeHoldID)
	if err != nil {
		return nil, err
	}

	consumed := bookingSum + holdSum
	if consumed+requested > window.Capacity {
		// Окно на одного клиента: это обычный конфликт слота, а не нехватка
		// группового места.
		if window.Capacity == 1 {
			return nil, fmt.Errorf("%w: window %d", domain.ErrSlotConflict, window.ID)
		}
		return nil, fmt.Errorf("%w: window %d has %d of %d consumed", domain.ErrCapacityExceeded, window.ID, consumed, window.Capacity)
	}

	return &CheckResult{Window: window, Consumed: consumed}, nil
}
