package models

import "time"

// Service is a catalog entry for a bookable service. The catalog is seeded
// from config and cached by the store; windows and bookings reference it by ID.
type Service struct {
	ID           int64  `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	ServiceType  string `yaml:"service_type" json:"service_type"`
	LocationType string `yaml:"location_type" json:"location_type"`
	DurationMin  int    `yaml:"duration_min" json:"duration_min"`
	IsActive     bool   `yaml:"is_active" json:"is_active"`
}

// AvailabilityWindow is an admin-defined open period during which a
// (service type, location type) pair may be booked, with a group capacity.
// Windows for the same pair never overlap.
type AvailabilityWindow struct {
	ID           int64     `json:"id"`
	ServiceType  string    `json:"service_type"`
	LocationType string    `json:"location_type"`
	Range        TimeRange `json:"range"`
	Capacity     int       `json:"capacity"`
	IsOpen       bool      `json:"is_open"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Hold is a time-boxed soft reservation that consumes capacity during
// checkout. It dies on explicit release, on conversion into a booking, or
// when the reaper collects it after ExpiresAt.
type Hold struct {
	ID           string    `json:"id"`
	OwnerRef     string    `json:"owner_ref"`
	ServiceID    int64     `json:"service_id"`
	ServiceType  string    `json:"service_type"`
	LocationType string    `json:"location_type"`
	Range        TimeRange `json:"range"`
	Capacity     int       `json:"capacity"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// Active reports whether the hold still blocks capacity at instant now.
func (h *Hold) Active(now time.Time) bool {
	return now.Before(h.ExpiresAt)
}

// ClientInfo is the customer snapshot denormalized onto a booking.
type ClientInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	Notes string `json:"notes,omitempty"`
}

// Booking is a committed reservation. Once created it is immutable history
// apart from status transitions, which are version-guarded.
type Booking struct {
	ID           int64      `json:"id"`
	ServiceID    int64      `json:"service_id"`
	ServiceName  string     `json:"service_name"`
	ServiceType  string     `json:"service_type"`
	LocationType string     `json:"location_type"`
	Range        TimeRange  `json:"range"`
	Status       string     `json:"status"`
	Capacity     int        `json:"capacity"`
	Client       ClientInfo `json:"client"`
	Version      int64      `json:"version"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ActiveStatus reports whether the booking currently counts against capacity.
func (b *Booking) ActiveStatus() bool {
	return IsActiveStatus(b.Status)
}

// CalendarBlock is an administrative denial of a time range. Any overlap
// makes the range unbookable regardless of remaining capacity. Scope is a
// location type; empty scope applies everywhere.
type CalendarBlock struct {
	ID        int64     `json:"id"`
	Scope     string    `json:"scope"`
	Range     TimeRange `json:"range"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// CapacitySnapshot is derived on demand: window capacity minus overlapping
// active bookings and live holds. Never persisted.
type CapacitySnapshot struct {
	WindowID  int64 `json:"window_id"`
	Total     int   `json:"total"`
	Used      int   `json:"used"`
	Remaining int   `json:"remaining"`
}

// CheckoutSession tracks a customer's in-flight checkout, keyed by ownerRef.
// Stored in Redis with a TTL; plumbing around the engine, never consulted
// for capacity decisions.
type CheckoutSession struct {
	OwnerRef  string    `json:"owner_ref"`
	HoldID    string    `json:"hold_id"`
	ServiceID int64     `json:"service_id"`
	Step      string    `json:"step"`
	UpdatedAt time.Time `json:"updated_at"`
}
