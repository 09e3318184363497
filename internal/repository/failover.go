package repository

import (
	"context"
	"sync/atomic"
	"time"

	"slotnik/internal/domain"
	"slotnik/internal/models"

	"github.com/rs/zerolog"
)

// Как часто пробуем вернуться на основное хранилище после отказа.
const recoveryInterval = time.Minute

// FailoverSessionRepository прозрачно переключает чтения и записи
// на резервное хранилище, когда основное (Redis) недоступно.
// Раз в recoveryInterval основное пробуется снова.
type FailoverSessionRepository struct {
	primary   domain.SessionRepository
	fallback  domain.SessionRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverSessionRepository(primary, fallback domain.SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary сообщает, стоит ли вообще трогать основное хранилище.
func (r *FailoverSessionRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(r.lastCheck) > recoveryInterval
}

func (r *FailoverSessionRepository) markUp() {
	r.isDown.Store(false)
}

func (r *FailoverSessionRepository) markDown(op string, err error) {
	r.logger.Error().Err(err).Str("op", op).Msg("session store unavailable, switching to fallback")
	r.isDown.Store(true)
	r.lastCheck = time.Now()
}

func (r *FailoverSessionRepository) GetSession(ctx context.Context, ownerRef string) (*models.CheckoutSession, error) {
	if r.usePrimary() {
		session, err := r.primary.GetSession(ctx, ownerRef)
		if err == nil {
			r.markUp()
			return session, nil
		}
		r.markDown("get_session", err)
	}
	return r.fallback.GetSession(ctx, ownerRef)
}

func (r *FailoverSessionRepository) SetSession(ctx context.Context, session *models.CheckoutSession) error {
	if r.usePrimary() {
		err := r.primary.SetSession(ctx, session)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown("set_session", err)
	}
	return r.fallback.SetSession(ctx, session)
}

func (r *FailoverSessionRepository) ClearSession(ctx context.Context, ownerRef string) error {
	if r.usePrimary() {
		err := r.primary.ClearSession(ctx, ownerRef)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown("clear_session", err)
	}
	return r.fallback.ClearSession(ctx, ownerRef)
}

func (r *FailoverSessionRepository) CheckRateLimit(ctx context.Context, ownerRef string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, ownerRef, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown("check_rate_limit", err)
	}
	return r.fallback.CheckRateLimit(ctx, ownerRef, limit, window)
}
