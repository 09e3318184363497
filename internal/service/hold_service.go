package service

import (
	"context"
	"fmt"
	"time"

	"slotnik/internal/clock"
	"slotnik/internal/domain"
	"slotnik/internal/events"
	"slotnik/internal/metrics"
	"slotnik/internal/models"
	"slotnik/internal/schedule"
	"slotnik/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HoldService places and releases time-boxed soft reservations. Placement is
// the check-then-act sequence: find the covering window, take its lock,
// re-run the conflict check, insert the hold and bump the tracker before the
// lock drops.
type HoldService struct {
	store      domain.Store
	sessions   domain.SessionRepository
	checker    *ConflictChecker
	locks      *schedule.LockTable
	index      *schedule.Index
	tracker    *schedule.CapacityTracker
	eventBus   domain.EventPublisher
	clock      clock.Clock
	retry      worker.RetryPolicy
	defaultTTL time.Duration
	maxAdvance time.Duration
	rateLimit  int
	rateWindow time.Duration
	logger     *zerolog.Logger
}

type HoldServiceConfig struct {
	DefaultTTL     time.Duration
	MaxAdvanceDays int
	RateLimit      int
	RateWindow     time.Duration
	Retry          worker.RetryPolicy
}

func NewHoldService(
	store domain.Store,
	sessions domain.SessionRepository,
	checker *ConflictChecker,
	index *schedule.Index,
	locks *schedule.LockTable,
	tracker *schedule.CapacityTracker,
	eventBus domain.EventPublisher,
	clk clock.Clock,
	cfg HoldServiceConfig,
	logger *zerolog.Logger,
) *HoldService {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Duration(models.DefaultHoldTTLMinutes) * time.Minute
	}
	if cfg.MaxAdvanceDays <= 0 {
		cfg.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	return &HoldService{
		store:      store,
		sessions:   sessions,
		checker:    checker,
		locks:      locks,
		index:      index,
		tracker:    tracker,
		eventBus:   eventBus,
		clock:      clk,
		retry:      cfg.Retry,
		defaultTTL: cfg.DefaultTTL,
		maxAdvance: time.Duration(cfg.MaxAdvanceDays) * 24 * time.Hour,
		rateLimit:  cfg.RateLimit,
		rateWindow: cfg.RateWindow,
		logger:     logger,
	}
}

func (s *HoldService) validate(ownerRef string, r models.TimeRange, capacity int) error {
	if ownerRef == "" {
		return fmt.Errorf("%w: owner_ref is required", domain.ErrValidation)
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if capacity < 1 {
		return fmt.Errorf("%w: capacity must be at least 1", domain.ErrValidation)
	}
	now := s.clock.Now()
	if r.Start.Before(now) {
		return fmt.Errorf("%w: range starts in the past", domain.ErrValidation)
	}
	if r.Start.After(now.Add(s.maxAdvance)) {
		return fmt.Errorf("%w: range starts too far ahead", domain.ErrValidation)
	}
	return nil
}

// CreateHold reserves capacity on the range until the TTL runs out. A zero
// ttl falls back to the configured default.
func (s *HoldService) CreateHold(ctx context.Context, ownerRef string, serviceID int64, r models.TimeRange, capacity int, ttl time.Duration) (*models.Hold, error) {
	if err := s.validate(ownerRef, r, capacity); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	svc, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	if s.rateLimit > 0 && s.sessions != nil {
		allowed, err := s.sessions.CheckRateLimit(ctx, ownerRef, s.rateLimit, s.rateWindow)
		if err != nil {
			// Недоступный лимитер не должен ронять бронирование.
			s.logger.Warn().Err(err).Str("owner_ref", ownerRef).Msg("rate limit check failed, allowing")
		} else if !allowed {
			return nil, domain.ErrRateLimited
		}
	}

	window := s.index.Covering(svc.ServiceType, svc.LocationType, r)
	if window == nil {
		return nil, domain.ErrOutsideAvailability
	}

	unlock := s.locks.Lock(window.ID)
	defer unlock()

	if _, err := s.checker.Check(ctx, svc.ServiceType, svc.LocationType, r, capacity, ""); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	hold := &models.Hold{
		ID:           uuid.NewString(),
		OwnerRef:     ownerRef,
		ServiceID:    serviceID,
		ServiceType:  svc.ServiceType,
		LocationType: svc.LocationType,
		Range:        r,
		Capacity:     capacity,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
	}

	err = withRetry(ctx, s.retry, func() error {
		return s.store.CreateHold(ctx, hold)
	})
	if err != nil {
		return nil, err
	}

	s.tracker.Adjust(window.ID, capacity)
	metrics.IncHoldCreated()

	s.publishHoldEvent(events.EventHoldCreated, hold)
	s.touchSession(ctx, hold)

	s.logger.Info().
		Str("hold_id", hold.ID).
		Str("owner_ref", ownerRef).
		Int64("service_id", serviceID).
		Time("expires_at", hold.ExpiresAt).
		Msg("hold created")

	return hold, nil
}

// ReleaseHold frees a hold's capacity. The first call wins; repeating it
// returns NotFound and changes nothing.
func (s *HoldService) ReleaseHold(ctx context.Context, id string) error {
	hold, err := s.store.GetHold(ctx, id)
	if err != nil {
		return err
	}

	window := s.index.Covering(hold.ServiceType, hold.LocationType, hold.Range)
	if window != nil {
		unlock := s.locks.Lock(window.ID)
		defer unlock()
	}

	deleted, err := s.store.DeleteHold(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		// Кто-то успел раньше: рипер или конвертация в бронь.
		return fmt.Errorf("%w: hold %s", domain.ErrNotFound, id)
	}

	if window != nil {
		s.tracker.Adjust(window.ID, -hold.Capacity)
	}
	metrics.IncHoldReleased("released")
	s.publishHoldEvent(events.EventHoldReleased, hold)

	if s.sessions != nil {
		_ = s.sessions.ClearSession(ctx, hold.OwnerRef)
	}

	s.logger.Info().Str("hold_id", id).Msg("hold released")
	return nil
}

// GetHold returns the hold regardless of expiry; callers decide liveness.
func (s *HoldService) GetHold(ctx context.Context, id string) (*models.Hold, error) {
	return s.store.GetHold(ctx, id)
}

func (s *HoldService) publishHoldEvent(eventType string, h *models.Hold) {
	if s.eventBus == nil {
		return
	}
	err := s.eventBus.PublishJSON(eventType, events.HoldEventPayload{
		HoldID:       h.ID,
		OwnerRef:     h.OwnerRef,
		ServiceID:    h.ServiceID,
		ServiceType:  h.ServiceType,
		LocationType: h.LocationType,
		StartAt:      h.Range.Start,
		EndAt:        h.Range.End,
		Capacity:     h.Capacity,
		ExpiresAt:    h.ExpiresAt,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func (s *HoldService) touchSession(ctx context.Context, h *models.Hold) {
	if s.sessions == nil {
		return
	}
	err := s.sessions.SetSession(ctx, &models.CheckoutSession{
		OwnerRef:  h.OwnerRef,
		HoldID:    h.ID,
		ServiceID: h.ServiceID,
		Step:      models.StepHolding,
		UpdatedAt: s.clock.Now(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("owner_ref", h.OwnerRef).Msg("failed to update checkout session")
	}
}
