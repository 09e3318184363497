package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"slotnik/internal/clock"
	"slotnik/internal/domain"
	"slotnik/internal/events"
	"slotnik/internal/metrics"
	"slotnik/internal/models"
	"slotnik/internal/schedule"
	"slotnik/internal/worker"

	"github.com/rs/zerolog"
)

// BookingService commits bookings and drives the status state machine. The
// commit is the correctness-critical path: it runs as one serialized unit of
// work under the covering window's lock, with the conflict check re-run
// inside and the hold consumed in the same transaction as the insert.
type BookingService struct {
	store    domain.Store
	sessions domain.SessionRepository
	checker  *ConflictChecker
	index    *schedule.Index
	locks    *schedule.LockTable
	tracker  *schedule.CapacityTracker
	eventBus domain.EventPublisher
	clock    clock.Clock
	retry    worker.RetryPolicy
	logger   *zerolog.Logger
}

func NewBookingService(
	store domain.Store,
	sessions domain.SessionRepository,
	checker *ConflictChecker,
	index *schedule.Index,
	locks *schedule.LockTable,
	tracker *schedule.CapacityTracker,
	eventBus domain.EventPublisher,
	clk clock.Clock,
	retry worker.RetryPolicy,
	logger *zerolog.Logger,
) *BookingService {
	return &BookingService{
		store:    store,
		sessions: sessions,
		checker:  checker,
		index:    index,
		locks:    locks,
		tracker:  tracker,
		eventBus: eventBus,
		clock:    clk,
		retry:    retry,
		logger:   logger,
	}
}

func (s *BookingService) validate(req domain.BookingRequest) error {
	if err := req.Range.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if req.Capacity < 1 {
		return fmt.Errorf("%w: capacity must be at least 1", domain.ErrValidation)
	}
	if req.Client.Name == "" {
		return fmt.Errorf("%w: client name is required", domain.ErrValidation)
	}
	if req.Range.Start.Before(s.clock.Now()) {
		return fmt.Errorf("%w: range starts in the past", domain.ErrValidation)
	}
	return nil
}

// CreateBooking commits a pending booking, consuming the given hold if any.
// Of N concurrent calls against remaining capacity C, at most C succeed.
func (s *BookingService) CreateBooking(ctx context.Context, req domain.BookingRequest) (*models.Booking, error) {
	if req.Capacity == 0 {
		req.Capacity = 1
	}
	if err := s.validate(req); err != nil {
		metrics.IncBooking("rejected")
		return nil, err
	}

	svc, err := s.store.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	window := s.index.Covering(svc.ServiceType, svc.LocationType, req.Range)
	if window == nil {
		metrics.IncBooking("rejected")
		return nil, domain.ErrOutsideAvailability
	}

	unlock := s.locks.Lock(window.ID)
	defer unlock()

	var hold *models.Hold
	if req.HoldID != "" {
		hold, err = s.store.GetHold(ctx, req.HoldID)
		if err != nil {
			return nil, err
		}
		if !hold.Active(s.clock.Now()) {
			// Просроченный холд ничем не лучше отсутствующего.
			return nil, fmt.Errorf("%w: hold %s expired", domain.ErrNotFound, req.HoldID)
		}
		if req.OwnerRef != "" && hold.OwnerRef != req.OwnerRef {
			return nil, domain.ErrHoldNotOwned
		}
		if hold.ServiceID != req.ServiceID || !hold.Range.Start.Equal(req.Range.Start) || !hold.Range.End.Equal(req.Range.End) {
			return nil, fmt.Errorf("%w: hold does not match the requested slot", domain.ErrValidation)
		}
		req.Capacity = hold.Capacity
	}

	if _, err := s.checker.Check(ctx, svc.ServiceType, svc.LocationType, req.Range, req.Capacity, req.HoldID); err != nil {
		metrics.IncBooking(bookingOutcome(err))
		return nil, err
	}

	booking := &models.Booking{
		ServiceID:    req.ServiceID,
		ServiceName:  svc.Name,
		ServiceType:  svc.ServiceType,
		LocationType: svc.LocationType,
		Range:        req.Range,
		Status:       models.StatusPending,
		Capacity:     req.Capacity,
		Client:       req.Client,
	}

	err = withRetry(ctx, s.retry, func() error {
		return s.store.CreateBooking(ctx, booking, req.HoldID)
	})
	if err != nil {
		return nil, err
	}

	// Холд освободил ровно столько, сколько заняла бронь; трекер двигается
	// только на разницу.
	delta := req.Capacity
	if hold != nil {
		delta -= hold.Capacity
	}
	if delta != 0 {
		s.tracker.Adjust(window.ID, delta)
	}

	metrics.IncBooking("created")
	if hold != nil {
		metrics.IncHoldReleased("consumed")
		if s.sessions != nil {
			_ = s.sessions.ClearSession(ctx, hold.OwnerRef)
		}
	}

	s.publishBookingEvent(events.EventBookingCreated, booking, req.HoldID)

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("service_id", booking.ServiceID).
		Str("hold_id", req.HoldID).
		Msg("booking created")

	return booking, nil
}

// UpdateStatus applies one state-machine transition under version guard and
// adjusts capacity only when crossing the active/inactive boundary.
func (s *BookingService) UpdateStatus(ctx context.Context, id int64, status string, version int64) (*models.Booking, error) {
	if !models.ValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
	}

	booking, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(booking.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, booking.Status, status)
	}

	window := s.index.Covering(booking.ServiceType, booking.LocationType, booking.Range)
	if window != nil {
		unlock := s.locks.Lock(window.ID)
		defer unlock()
	}

	wasActive := models.IsActiveStatus(booking.Status)
	willBeActive := models.IsActiveStatus(status)

	// draft -> pending начинает занимать место, поэтому его надо выиграть
	// заново, как обычную бронь.
	if !wasActive && willBeActive {
		if _, err := s.checker.Check(ctx, booking.ServiceType, booking.LocationType, booking.Range, booking.Capacity, ""); err != nil {
			return nil, err
		}
	}

	err = withRetry(ctx, s.retry, func() error {
		return s.store.UpdateBookingStatusWithVersion(ctx, id, version, status)
	})
	if err != nil {
		return nil, err
	}

	if window != nil {
		switch {
		case !wasActive && willBeActive:
			s.tracker.Adjust(window.ID, booking.Capacity)
		case wasActive && !willBeActive:
			s.tracker.Adjust(window.ID, -booking.Capacity)
		}
	}

	updated, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	if eventType := statusEvent(status); eventType != "" {
		s.publishBookingEvent(eventType, updated, "")
	}

	s.logger.Info().
		Int64("booking_id", id).
		Str("from", booking.Status).
		Str("to", status).
		Msg("booking status updated")

	return updated, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

func (s *BookingService) ListBookings(ctx context.Context, from, to time.Time) ([]*models.Booking, error) {
	return s.store.ListBookingsByRange(ctx, from, to)
}

func (s *BookingService) publishBookingEvent(eventType string, b *models.Booking, holdID string) {
	if s.eventBus == nil {
		return
	}
	err := s.eventBus.PublishJSON(eventType, events.BookingEventPayload{
		BookingID:    b.ID,
		ServiceID:    b.ServiceID,
		ServiceName:  b.ServiceName,
		ServiceType:  b.ServiceType,
		LocationType: b.LocationType,
		StartAt:      b.Range.Start,
		EndAt:        b.Range.End,
		Status:       b.Status,
		Capacity:     b.Capacity,
		ClientName:   b.Client.Name,
		HoldID:       holdID,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func statusEvent(status string) string {
	switch status {
	case models.StatusConfirmed:
		return events.EventBookingConfirmed
	case models.StatusCancelled:
		return events.EventBookingCancelled
	case models.StatusCompleted:
		return events.EventBookingCompleted
	}
	return ""
}

func bookingOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrCapacityExceeded):
		return "capacity"
	case errors.Is(err, domain.ErrSlotConflict):
		return "conflict"
	default:
		return "rejected"
	}
}
