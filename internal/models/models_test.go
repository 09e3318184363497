package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func mustRange(t *testing.T, start, end string) TimeRange {
	t.Helper()
	s, err := time.Parse(time.RFC3339, start)
	assert.NoError(t, err)
	e, err := time.Parse(time.RFC3339, end)
	assert.NoError(t, err)
	return NewTimeRange(s, e)
}

func TestTimeRangeOverlaps(t *testing.T) {
	base := mustRange(t, "2025-03-01T09:00:00Z", "2025-03-01T10:00:00Z")

	tests := []struct {
		name  string
		other TimeRange
		want  bool
	}{
		{"identical", mustRange(t, "2025-03-01T09:00:00Z", "2025-03-01T10:00:00Z"), true},
		{"contained", mustRange(t, "2025-03-01T09:15:00Z", "2025-03-01T09:45:00Z"), true},
		{"partial_left", mustRange(t, "2025-03-01T08:30:00Z", "2025-03-01T09:30:00Z"), true},
		{"partial_right", mustRange(t, "2025-03-01T09:30:00Z", "2025-03-01T10:30:00Z"), true},
		{"touching_start", mustRange(t, "2025-03-01T08:00:00Z", "2025-03-01T09:00:00Z"), false},
		{"touching_end", mustRange(t, "2025-03-01T10:00:00Z", "2025-03-01T11:00:00Z"), false},
		{"disjoint", mustRange(t, "2025-03-01T12:00:00Z", "2025-03-01T13:00:00Z"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(base))
		})
	}
}

func TestTimeRangeContains(t *testing.T) {
	outer := mustRange(t, "2025-03-01T09:00:00Z", "2025-03-01T12:00:00Z")

	assert.True(t, outer.Contains(mustRange(t, "2025-03-01T09:00:00Z", "2025-03-01T12:00:00Z")))
	assert.True(t, outer.Contains(mustRange(t, "2025-03-01T10:00:00Z", "2025-03-01T11:00:00Z")))
	assert.False(t, outer.Contains(mustRange(t, "2025-03-01T08:59:00Z", "2025-03-01T10:00:00Z")))
	assert.False(t, outer.Contains(mustRange(t, "2025-03-01T11:00:00Z", "2025-03-01T12:01:00Z")))
}

func TestTimeRangeContainsInstant(t *testing.T) {
	r := mustRange(t, "2025-03-01T09:00:00Z", "2025-03-01T10:00:00Z")

	assert.True(t, r.ContainsInstant(r.Start))
	assert.True(t, r.ContainsInstant(r.Start.Add(30*time.Minute)))
	// half-open: the end instant is outside
	assert.False(t, r.ContainsInstant(r.End))
}

func TestTimeRangeValidate(t *testing.T) {
	assert.NoError(t, mustRange(t, "2025-03-01T09:00:00Z", "2025-03-01T10:00:00Z").Validate())

	empty := TimeRange{}
	assert.Error(t, empty.Validate())

	start, _ := time.Parse(time.RFC3339, "2025-03-01T10:00:00Z")
	inverted := NewTimeRange(start, start.Add(-time.Hour))
	assert.Error(t, inverted.Validate())

	zeroLength := NewTimeRange(start, start)
	assert.Error(t, zeroLength.Validate())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusDraft, StatusPending, true},
		{StatusPending, StatusConfirmed, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusDraft, StatusCancelled, true},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusDraft, StatusConfirmed, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusCompleted, StatusPending, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestIsActiveStatus(t *testing.T) {
	assert.True(t, IsActiveStatus(StatusPending))
	assert.True(t, IsActiveStatus(StatusConfirmed))
	assert.False(t, IsActiveStatus(StatusDraft))
	assert.False(t, IsActiveStatus(StatusCompleted))
	assert.False(t, IsActiveStatus(StatusCancelled))
}

func TestHoldActive(t *testing.T) {
	now := time.Now().UTC()
	h := &Hold{ExpiresAt: now.Add(time.Minute)}

	assert.True(t, h.Active(now))
	assert.False(t, h.Active(now.Add(time.Minute)))
	assert.False(t, h.Active(now.Add(2*time.Minute)))
}
