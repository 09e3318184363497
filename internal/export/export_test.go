package export

import (
	"context"
	"os"
	"testing"
	"time"

	"slotnik/internal/database"
	"slotnik/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestBookingsToExcel(t *testing.T) {
	logger := zerolog.New(os.Stdout)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	db.SetServices([]models.Service{
		{ID: 1, Name: "Lip Consultation", ServiceType: "lips", LocationType: "studio", DurationMin: 60, IsActive: true},
	})

	ctx := context.Background()
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	b := &models.Booking{
		ServiceID:    1,
		ServiceName:  "Lip Consultation",
		ServiceType:  "lips",
		LocationType: "studio",
		Range:        models.TimeRange{Start: start, End: start.Add(time.Hour)},
		Status:       models.StatusConfirmed,
		Capacity:     1,
		Client:       models.ClientInfo{Name: "Анна", Phone: "+79990001122"},
	}
	require.NoError(t, db.CreateBooking(ctx, b, ""))

	exporter := NewExporter(db, t.TempDir(), &logger)
	path, err := exporter.BookingsToExcel(ctx, start.Add(-time.Hour), start.Add(24*time.Hour))
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	name, err := f.GetCellValue("Бронирования", "B3")
	require.NoError(t, err)
	assert.Equal(t, "Lip Consultation", name)

	status, err := f.GetCellValue("Бронирования", "E3")
	require.NoError(t, err)
	assert.Equal(t, "Подтверждена", status)
}
