package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"slotnik/internal/config"
	"slotnik/internal/models"

	"github.com/redis/go-redis/v9"
)

// Ключи в Redis. Сессия живет под TTL репозитория, счетчик
// ограничения частоты получает собственное окно через EXPIRE.
const (
	sessionKeyPrefix = "checkout_session:"
	rateKeyPrefix    = "hold_rate:"
)

var errNoClient = errors.New("redis client is not configured")

// RedisSessionRepository хранит checkout-сессии клиентов в Redis,
// чтобы незавершенное оформление переживало рестарт процесса.
type RedisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisSessionRepository(client *redis.Client, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{client: client, ttl: ttl}
}

// GetSession возвращает nil без ошибки, если сессии нет.
func (r *RedisSessionRepository) GetSession(ctx context.Context, ownerRef string) (*models.CheckoutSession, error) {
	if r.client == nil {
		return nil, errNoClient
	}

	raw, err := r.client.Get(ctx, sessionKeyPrefix+ownerRef).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("read session %q: %w", ownerRef, err)
	}

	session := new(models.CheckoutSession)
	if err := json.Unmarshal(raw, session); err != nil {
		return nil, fmt.Errorf("decode session %q: %w", ownerRef, err)
	}
	return session, nil
}

func (r *RedisSessionRepository) SetSession(ctx context.Context, session *models.CheckoutSession) error {
	if r.client == nil {
		return errNoClient
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %q: %w", session.OwnerRef, err)
	}
	if err := r.client.Set(ctx, sessionKeyPrefix+session.OwnerRef, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("write session %q: %w", session.OwnerRef, err)
	}
	return nil
}

func (r *RedisSessionRepository) ClearSession(ctx context.Context, ownerRef string) error {
	if r.client == nil {
		return errNoClient
	}
	if err := r.client.Del(ctx, sessionKeyPrefix+ownerRef).Err(); err != nil {
		return fmt.Errorf("drop session %q: %w", ownerRef, err)
	}
	return nil
}

// CheckRateLimit реализует скользящее окно через INCR+EXPIRE.
// Первое обращение в окне взводит таймер, дальше только счет.
func (r *RedisSessionRepository) CheckRateLimit(ctx context.Context, ownerRef string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNoClient
	}

	key := rateKeyPrefix + ownerRef
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("bump rate counter %q: %w", ownerRef, err)
	}
	if count == 1 {
		r.client.Expire(ctx, key, window)
	}
	return count <= int64(limit), nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
