package domain

import (
	"context"
	"time"

	"slotnik/internal/models"
)

// Store is the persistence contract the engine runs against.
type Store interface {
	// Windows
	CreateWindow(ctx context.Context, w *models.AvailabilityWindow) error
	DeleteWindow(ctx context.Context, id int64) error
	UpdateWindow(ctx context.Context, w *models.AvailabilityWindow) error
	ListWindows(ctx context.Context) ([]*models.AvailabilityWindow, error)

	// Holds
	CreateHold(ctx context.Context, h *models.Hold) error
	GetHold(ctx context.Context, id string) (*models.Hold, error)
	DeleteHold(ctx context.Context, id string) (bool, error)
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*models.Hold, error)
	SumHoldCapacity(ctx context.Context, serviceType, locationType string, r models.TimeRange, now time.Time, excludeID string) (int, error)

	// Bookings
	CreateBooking(ctx context.Context, b *models.Booking, consumeHoldID string) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error
	ListBookingsByRange(ctx context.Context, from, to time.Time) ([]*models.Booking, error)
	SumBookingCapacity(ctx context.Context, serviceType, locationType string, r models.TimeRange) (int, error)

	// Calendar blocks
	CreateBlock(ctx context.Context, b *models.CalendarBlock) error
	DeleteBlock(ctx context.Context, id int64) error
	ListBlocks(ctx context.Context) ([]*models.CalendarBlock, error)
	HasBlockOverlap(ctx context.Context, scope string, r models.TimeRange) (bool, error)
	HasBlockScopeOverlap(ctx context.Context, scope string, r models.TimeRange) (bool, error)

	// Service catalog
	GetService(ctx context.Context, id int64) (*models.Service, error)
	ListServices() []*models.Service
}

// SessionRepository keeps checkout session state per ownerRef and throttles
// hold creation. Redis-backed in production with an in-memory failover.
type SessionRepository interface {
	GetSession(ctx context.Context, ownerRef string) (*models.CheckoutSession, error)
	SetSession(ctx context.Context, session *models.CheckoutSession) error
	ClearSession(ctx context.Context, ownerRef string) error
	CheckRateLimit(ctx context.Context, ownerRef string, limit int, window time.Duration) (bool, error)
}

// EventPublisher fans committed state changes out to downstream plumbing
// (analytics, CRM, notifications) that reads bookings but never allocates.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// HoldService creates and releases time-boxed soft reservations.
type HoldService interface {
	CreateHold(ctx context.Context, ownerRef string, serviceID int64, r models.TimeRange, capacity int, ttl time.Duration) (*models.Hold, error)
	ReleaseHold(ctx context.Context, id string) error
	GetHold(ctx context.Context, id string) (*models.Hold, error)
}

// BookingService commits bookings and drives the status state machine.
type BookingService interface {
	CreateBooking(ctx context.Context, req BookingRequest) (*models.Booking, error)
	UpdateStatus(ctx context.Context, id int64, status string, version int64) (*models.Booking, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookings(ctx context.Context, from, to time.Time) ([]*models.Booking, error)
}

// BookingRequest carries everything CreateBooking needs in one place.
type BookingRequest struct {
	ServiceID int64
	Range     models.TimeRange
	Capacity  int
	Client    models.ClientInfo
	HoldID    string
	OwnerRef  string
}

// AvailabilityService owns admin CRUD on windows and blocks plus capacity
// snapshots for the storefront.
type AvailabilityService interface {
	AddWindow(ctx context.Context, w *models.AvailabilityWindow) error
	UpdateWindow(ctx context.Context, w *models.AvailabilityWindow) error
	RemoveWindow(ctx context.Context, id int64) error
	ListWindows() []*models.AvailabilityWindow
	AddBlock(ctx context.Context, b *models.CalendarBlock) error
	RemoveBlock(ctx context.Context, id int64) error
	ListBlocks(ctx context.Context) ([]*models.CalendarBlock, error)
	Snapshots(ctx context.Context, serviceID int64, from, to time.Time) ([]*models.CapacitySnapshot, error)
}
