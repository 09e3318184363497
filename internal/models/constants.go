package models

const (
	StatusDraft     = "draft"
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	StepSelecting  = "selecting"
	StepHolding    = "holding"
	StepConfirming = "confirming"
)

const (
	// DefaultHoldTTLMinutes время жизни холда во время оформления
	DefaultHoldTTLMinutes = 10

	// DefaultReaperIntervalSeconds период сборки просроченных холдов
	DefaultReaperIntervalSeconds = 60

	// DefaultReaperBatchSize максимум холдов за один проход
	DefaultReaperBatchSize = 100

	// DefaultSessionTTLMinutes время жизни checkout-сессии в Redis
	DefaultSessionTTLMinutes = 30

	// DefaultMaxAdvanceDays как далеко вперёд разрешено бронировать
	DefaultMaxAdvanceDays = 365

	// DefaultHoldRateLimit холдов на ownerRef в окне
	DefaultHoldRateLimit = 10

	// DefaultHoldRateWindowSeconds окно ограничения создания холдов
	DefaultHoldRateWindowSeconds = 60
)

// transitions enumerates the legal booking status changes.
// draft → pending → confirmed → completed; any non-terminal → cancelled.
var transitions = map[string][]string{
	StatusDraft:     {StatusPending, StatusCancelled},
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsActiveStatus reports whether a status counts against window capacity.
func IsActiveStatus(status string) bool {
	return status == StatusPending || status == StatusConfirmed
}

// IsTerminalStatus reports whether no further transitions are possible.
func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// ValidStatus reports whether the string is a known booking status.
func ValidStatus(status string) bool {
	_, ok := transitions[status]
	return ok
}

// ActiveStatuses is used when summing consumed capacity in SQL.
var ActiveStatuses = []string{StatusPending, StatusConfirmed}
