package domain

import "errors"

// Reservation outcomes. These are business results, not failures: the API
// maps them to stable error codes and they are never retried.
var (
	// ErrValidation covers malformed input: empty/inverted/past-dated ranges,
	// zero capacity, unknown statuses.
	ErrValidation = errors.New("validation failed")

	// ErrOutsideAvailability means no open window fully covers the range.
	ErrOutsideAvailability = errors.New("range outside availability")

	// ErrBlocked means the range overlaps a calendar block. Blocks win over
	// capacity unconditionally.
	ErrBlocked = errors.New("range is blocked")

	// ErrCapacityExceeded means the covering window has no remaining capacity.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrSlotConflict is a generic overlap with another exclusive reservation.
	ErrSlotConflict = errors.New("slot conflict")

	// ErrNotFound covers unknown hold/booking/window/block/service ids.
	ErrNotFound = errors.New("not found")

	// ErrHoldNotOwned means the hold exists but belongs to a different owner.
	ErrHoldNotOwned = errors.New("hold not owned by requester")

	// ErrIllegalTransition rejects a status change outside the state machine.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrConcurrentModification signals a lost version-guarded update.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrWindowOverlap rejects a window insert/update that would overlap an
	// existing window for the same (service type, location type).
	ErrWindowOverlap = errors.New("availability window overlap")

	// ErrBlockOverlap rejects a calendar block overlapping another with the
	// same scope.
	ErrBlockOverlap = errors.New("calendar block overlap")

	// ErrRateLimited throttles hold creation per owner.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrTransientStorage wraps infrastructure failures that are safe to
	// retry with backoff.
	ErrTransientStorage = errors.New("transient storage error")
)

// Retryable reports whether the error is a transient infrastructure failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransientStorage)
}
