package worker

import (
	"context"
	"time"

	"slotnik/internal/clock"
	"slotnik/internal/domain"
	"slotnik/internal/events"
	"slotnik/internal/metrics"
	"slotnik/internal/models"
	"slotnik/internal/schedule"

	"github.com/rs/zerolog"
)

// Reaper reclaims expired holds on a timer. It takes the same per-window
// locks as the allocator, so a sweep never races a commit, and it never
// returns an error: failures are logged and the hold is retried next cycle.
type Reaper struct {
	store     domain.Store
	index     *schedule.Index
	locks     *schedule.LockTable
	tracker   *schedule.CapacityTracker
	eventBus  domain.EventPublisher
	clock     clock.Clock
	interval  time.Duration
	batchSize int
	logger    *zerolog.Logger
}

func NewReaper(
	store domain.Store,
	index *schedule.Index,
	locks *schedule.LockTable,
	tracker *schedule.CapacityTracker,
	eventBus domain.EventPublisher,
	clk clock.Clock,
	interval time.Duration,
	batchSize int,
	logger *zerolog.Logger,
) *Reaper {
	if interval <= 0 {
		interval = time.Duration(models.DefaultReaperIntervalSeconds) * time.Second
	}
	if batchSize <= 0 {
		batchSize = models.DefaultReaperBatchSize
	}
	return &Reaper{
		store:     store,
		index:     index,
		locks:     locks,
		tracker:   tracker,
		eventBus:  eventBus,
		clock:     clk,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run sweeps until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Msg("expiry reaper started")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("expiry reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep reclaims one batch of expired holds and reconciles tracker drift.
// Safe to run concurrently with itself: DeleteHold reports whether this
// caller actually removed the row, so capacity is freed exactly once.
func (r *Reaper) Sweep(ctx context.Context) {
	metrics.IncReaperSweep()
	now := r.clock.Now()

	expired, err := r.store.ListExpiredHolds(ctx, now, r.batchSize)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list expired holds")
		return
	}

	reclaimed := 0
	for _, hold := range expired {
		if r.reap(ctx, hold) {
			reclaimed++
		}
	}

	if reclaimed > 0 {
		metrics.AddReaperReclaimed(reclaimed)
		r.logger.Info().Int("expired", len(expired)).Int("reclaimed", reclaimed).Msg("reaper sweep finished")
	}

	r.reconcile(ctx, now)
}

func (r *Reaper) reap(ctx context.Context, hold *models.Hold) bool {
	window := r.index.Covering(hold.ServiceType, hold.LocationType, hold.Range)
	if window != nil {
		unlock := r.locks.Lock(window.ID)
		defer unlock()
	}

	deleted, err := r.store.DeleteHold(ctx, hold.ID)
	if err != nil {
		r.logger.Error().Err(err).Str("hold_id", hold.ID).Msg("failed to reap hold")
		return false
	}
	if !deleted {
		// Уже снят: релиз клиента или конвертация в бронь.
		return false
	}

	if window != nil {
		r.tracker.Adjust(window.ID, -hold.Capacity)
	}
	metrics.IncHoldReleased("expired")

	if r.eventBus != nil {
		_ = r.eventBus.PublishJSON(events.EventHoldExpired, events.HoldEventPayload{
			HoldID:       hold.ID,
			OwnerRef:     hold.OwnerRef,
			ServiceID:    hold.ServiceID,
			ServiceType:  hold.ServiceType,
			LocationType: hold.LocationType,
			StartAt:      hold.Range.Start,
			EndAt:        hold.Range.End,
			Capacity:     hold.Capacity,
			ExpiresAt:    hold.ExpiresAt,
		})
	}
	return true
}

// reconcile overwrites each window's used counter with the storage truth.
// Any drift the in-memory tracker accumulated dies here.
func (r *Reaper) reconcile(ctx context.Context, now time.Time) {
	for _, w := range r.index.All() {
		unlock := r.locks.Lock(w.ID)

		bookingSum, err := r.store.SumBookingCapacity(ctx, w.ServiceType, w.LocationType, w.Range)
		if err != nil {
			unlock()
			r.logger.Error().Err(err).Int64("window_id", w.ID).Msg("reconcile: booking sum failed")
			continue
		}
		holdSum, err := r.store.SumHoldCapacity(ctx, w.ServiceType, w.LocationType, w.Range, now, "")
		if err != nil {
			unlock()
			r.logger.Error().Err(err).Int64("window_id", w.ID).Msg("reconcile: hold sum failed")
			continue
		}

		r.tracker.SetTotal(w.ID, w.Capacity)
		r.tracker.SetUsed(w.ID, bookingSum+holdSum)
		unlock()
	}
}
