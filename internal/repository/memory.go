package repository

import (
	"context"
	"sync"
	"time"

	"slotnik/internal/models"
)

// MemorySessionRepository держит сессии в памяти процесса. Служит
// резервом при недоступном Redis и единственным хранилищем, когда
// Redis выключен в конфиге. TTL здесь не применяется принудительно,
// сессии живут до явной очистки или рестарта.
type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.CheckoutSession
	counters map[string]*rateWindow
	ttl      time.Duration
}

type rateWindow struct {
	count    int
	resetsAt time.Time
}

func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string]*models.CheckoutSession),
		counters: make(map[string]*rateWindow),
		ttl:      ttl,
	}
}

func (r *MemorySessionRepository) GetSession(ctx context.Context, ownerRef string) (*models.CheckoutSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[ownerRef], nil
}

func (r *MemorySessionRepository) SetSession(ctx context.Context, session *models.CheckoutSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.OwnerRef] = session
	return nil
}

func (r *MemorySessionRepository) ClearSession(ctx context.Context, ownerRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, ownerRef)
	return nil
}

func (r *MemorySessionRepository) CheckRateLimit(ctx context.Context, ownerRef string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	w, ok := r.counters[ownerRef]
	if !ok || now.After(w.resetsAt) {
		w = &rateWindow{resetsAt: now.Add(window)}
		r.counters[ownerRef] = w
	}
	w.count++
	return w.count <= limit, nil
}
