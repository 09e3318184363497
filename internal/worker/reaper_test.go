package worker

import (
	"context"
	"io"
	"testing"
	"time"

	"slotnik/internal/clock"
	"slotnik/internal/database"
	"slotnik/internal/domain"
	"slotnik/internal/events"
	"slotnik/internal/models"
	"slotnik/internal/schedule"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reaperStart = time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

type reaperFixture struct {
	store   *database.DB
	index   *schedule.Index
	locks   *schedule.LockTable
	tracker *schedule.CapacityTracker
	clk     *clock.Fake
	reaper  *Reaper
	window  *models.AvailabilityWindow
}

func newReaperFixture(t *testing.T) *reaperFixture {
	t.Helper()

	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clk := clock.NewFake(reaperStart)
	index := schedule.NewIndex()
	locks := schedule.NewLockTable()
	tracker := schedule.NewCapacityTracker()
	bus := events.NewEventBus()

	w := &models.AvailabilityWindow{
		ServiceType:  "lips",
		LocationType: "studio",
		Range:        models.NewTimeRange(reaperStart.Add(time.Hour), reaperStart.Add(10*time.Hour)),
		Capacity:     2,
		IsOpen:       true,
	}
	require.NoError(t, db.CreateWindow(context.Background(), w))
	require.NoError(t, index.Add(w))
	tracker.SetTotal(w.ID, w.Capacity)

	return &reaperFixture{
		store:   db,
		index:   index,
		locks:   locks,
		tracker: tracker,
		clk:     clk,
		reaper:  NewReaper(db, index, locks, tracker, bus, clk, time.Minute, 100, &logger),
		window:  w,
	}
}

func (f *reaperFixture) addHold(t *testing.T, id string, ttl time.Duration) *models.Hold {
	t.Helper()
	h := &models.Hold{
		ID:           id,
		OwnerRef:     "owner-" + id,
		ServiceID:    1,
		ServiceType:  "lips",
		LocationType: "studio",
		Range:        models.NewTimeRange(reaperStart.Add(2*time.Hour), reaperStart.Add(3*time.Hour)),
		Capacity:     1,
		ExpiresAt:    f.clk.Now().Add(ttl),
		CreatedAt:    f.clk.Now(),
	}
	require.NoError(t, f.store.CreateHold(context.Background(), h))
	f.tracker.Adjust(f.window.ID, h.Capacity)
	return h
}

func TestSweepReclaimsExpiredHolds(t *testing.T) {
	f := newReaperFixture(t)
	ctx := context.Background()

	f.addHold(t, "h1", 10*time.Minute)
	f.addHold(t, "h2", 20*time.Minute)

	snap, _ := f.tracker.Snapshot(f.window.ID)
	require.Equal(t, 2, snap.Used)

	// Первый холд протух, второй ещё жив.
	f.clk.Advance(15 * time.Minute)
	f.reaper.Sweep(ctx)

	_, err := f.store.GetHold(ctx, "h1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.store.GetHold(ctx, "h2")
	assert.NoError(t, err)

	snap, _ = f.tracker.Snapshot(f.window.ID)
	assert.Equal(t, 1, snap.Used)

	// Повторный проход ничего не находит и ничего не ломает.
	f.reaper.Sweep(ctx)
	snap, _ = f.tracker.Snapshot(f.window.ID)
	assert.Equal(t, 1, snap.Used)
}

func TestSweepIdempotentOnRacedDelete(t *testing.T) {
	f := newReaperFixture(t)
	ctx := context.Background()

	h := f.addHold(t, "h1", 10*time.Minute)
	f.clk.Advance(15 * time.Minute)

	// Клиент успел снять холд между листингом и проходом.
	deleted, err := f.store.DeleteHold(ctx, h.ID)
	require.NoError(t, err)
	require.True(t, deleted)
	f.tracker.Adjust(f.window.ID, -h.Capacity)

	f.reaper.Sweep(ctx)

	// Ёмкость не освобождена дважды: reconcile считает по хранилищу.
	snap, _ := f.tracker.Snapshot(f.window.ID)
	assert.Equal(t, 0, snap.Used)
}

func TestSweepReconcilesDrift(t *testing.T) {
	f := newReaperFixture(t)
	ctx := context.Background()

	f.addHold(t, "h1", 30*time.Minute)

	// Искусственный дрейф счётчика.
	f.tracker.SetUsed(f.window.ID, 5)

	f.reaper.Sweep(ctx)

	snap, _ := f.tracker.Snapshot(f.window.ID)
	assert.Equal(t, 1, snap.Used, "reconcile overwrites drifted counter with storage truth")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newReaperFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.reaper.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop on context cancel")
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, BackoffFactor: 2}

	assert.Equal(t, 100*time.Millisecond, policy.NextDelay(1))
	assert.Equal(t, 200*time.Millisecond, policy.NextDelay(2))
	assert.Equal(t, 300*time.Millisecond, policy.NextDelay(3), "clamped at max delay")
	assert.Equal(t, 100*time.Millisecond, policy.NextDelay(0), "attempt below 1 is treated as 1")
}
