package repository

import (
	"context"
	"testing"
	"time"

	"slotnik/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSessionRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	defer client.Close()

	repo := NewRedisSessionRepository(client, time.Hour)
	ctx := context.Background()

	t.Run("SetAndGetSession", func(t *testing.T) {
		session := &models.CheckoutSession{
			OwnerRef:  "client-123",
			HoldID:    "hold-abc",
			ServiceID: 7,
			Step:      models.StepHolding,
		}

		err := repo.SetSession(ctx, session)
		require.NoError(t, err)

		got, err := repo.GetSession(ctx, "client-123")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, session.OwnerRef, got.OwnerRef)
		assert.Equal(t, session.HoldID, got.HoldID)
		assert.Equal(t, session.Step, got.Step)
	})

	t.Run("GetNonExistentSession", func(t *testing.T) {
		got, err := repo.GetSession(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ClearSession", func(t *testing.T) {
		session := &models.CheckoutSession{OwnerRef: "client-456", Step: models.StepSelecting}
		repo.SetSession(ctx, session)

		err := repo.ClearSession(ctx, "client-456")
		require.NoError(t, err)

		got, _ := repo.GetSession(ctx, "client-456")
		assert.Nil(t, got)
	})

	t.Run("RateLimit", func(t *testing.T) {
		ownerRef := "client-789"
		limit := 2
		window := time.Second

		// First request
		allowed, err := repo.CheckRateLimit(ctx, ownerRef, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		// Second request
		allowed, err = repo.CheckRateLimit(ctx, ownerRef, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		// Third request (exceeds limit)
		allowed, err = repo.CheckRateLimit(ctx, ownerRef, limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		// Window expiry resets the counter
		s.FastForward(2 * time.Second)
		allowed, err = repo.CheckRateLimit(ctx, ownerRef, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})
}
