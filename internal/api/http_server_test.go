package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"slotnik/internal/clock"
	"slotnik/internal/config"
	"slotnik/internal/database"
	"slotnik/internal/events"
	"slotnik/internal/export"
	"slotnik/internal/models"
	"slotnik/internal/repository"
	"slotnik/internal/schedule"
	"slotnik/internal/service"
	"slotnik/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminKey = "admin-secret"
	storeKey = "storefront-secret"
)

var testStart = time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	handler http.Handler
	clk     *clock.Fake
}

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Port: 0, ReadTimeoutSec: 5, WriteTimeoutSec: 15},
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: adminKey, Name: "ops"},
				{Key: storeKey, Name: "storefront", Permissions: []string{"write:holds", "write:bookings", "read:availability"}},
			},
		},
	}
}

func newFixture(t *testing.T, cfg config.APIConfig) *fixture {
	t.Helper()

	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	db.SetServices([]models.Service{
		{ID: 1, Name: "Lip Consultation", ServiceType: "lips", LocationType: "studio", DurationMin: 60, IsActive: true},
	})

	clk := clock.NewFake(testStart)
	index := schedule.NewIndex()
	locks := schedule.NewLockTable()
	tracker := schedule.NewCapacityTracker()
	sessions := repository.NewMemorySessionRepository(time.Hour)
	bus := events.NewEventBus()
	checker := service.NewConflictChecker(db, index, clk)

	holds := service.NewHoldService(db, sessions, checker, index, locks, tracker, bus, clk,
		service.HoldServiceConfig{DefaultTTL: 10 * time.Minute, RateLimit: 1000, RateWindow: time.Minute}, &logger)
	bookings := service.NewBookingService(db, sessions, checker, index, locks, tracker, bus, clk,
		worker.RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond}, &logger)
	avail := service.NewAvailabilityService(db, index, locks, tracker, clk, &logger)
	exporter := export.NewExporter(db, t.TempDir(), &logger)

	srv := NewHTTPServer(cfg, holds, bookings, avail, db, exporter, &logger)
	return &fixture{handler: srv.Handler(), clk: clk}
}

func (f *fixture) do(t *testing.T, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (f *fixture) addWindow(t *testing.T, startHour, endHour, capacity int) map[string]any {
	t.Helper()
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	rec := f.do(t, http.MethodPost, "/api/v1/admin/windows", adminKey, map[string]any{
		"service_type":  "lips",
		"location_type": "studio",
		"start":         day.Add(time.Duration(startHour) * time.Hour),
		"end":           day.Add(time.Duration(endHour) * time.Hour),
		"capacity":      capacity,
		"is_open":       true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody(t, rec)
}

func hourQuery(startHour, endHour int) string {
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	return fmt.Sprintf("from=%s&to=%s",
		day.Add(time.Duration(startHour)*time.Hour).Format(time.RFC3339),
		day.Add(time.Duration(endHour)*time.Hour).Format(time.RFC3339))
}

func slotBody(startHour, endHour int) (time.Time, time.Time) {
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	return day.Add(time.Duration(startHour) * time.Hour), day.Add(time.Duration(endHour) * time.Hour)
}

func TestHealthzIsOpen(t *testing.T) {
	f := newFixture(t, testAPIConfig())
	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejectsMissingAndUnknownKeys(t *testing.T) {
	f := newFixture(t, testAPIConfig())

	rec := f.do(t, http.MethodGet, "/api/v1/services", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/services", "wrong-key", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/services", storeKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutesRequireAdminPermission(t *testing.T) {
	f := newFixture(t, testAPIConfig())

	rec := f.do(t, http.MethodGet, "/api/v1/admin/windows", storeKey, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/admin/windows", adminKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHoldLifecycle(t *testing.T) {
	f := newFixture(t, testAPIConfig())
	f.addWindow(t, 9, 18, 2)

	start, end := slotBody(10, 11)
	rec := f.do(t, http.MethodPost, "/api/v1/holds", storeKey, map[string]any{
		"owner_ref":  "client-a",
		"service_id": 1,
		"start":      start,
		"end":        end,
		"capacity":   1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	hold := decodeBody(t, rec)
	holdID, _ := hold["id"].(string)
	require.NotEmpty(t, holdID)

	rec = f.do(t, http.MethodGet, "/api/v1/holds/"+holdID, storeKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/holds/"+holdID, storeKey, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Повторное снятие уже ничего не находит
	rec = f.do(t, http.MethodDelete, "/api/v1/holds/"+holdID, storeKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeBody(t, rec)["code"])
}

func TestBookingFlow(t *testing.T) {
	f := newFixture(t, testAPIConfig())
	f.addWindow(t, 9, 18, 1)

	start, end := slotBody(10, 11)
	rec := f.do(t, http.MethodPost, "/api/v1/holds", storeKey, map[string]any{
		"owner_ref":  "client-a",
		"service_id": 1,
		"start":      start,
		"end":        end,
		"capacity":   1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	holdID := decodeBody(t, rec)["id"].(string)

	rec = f.do(t, http.MethodPost, "/api/v1/bookings", storeKey, map[string]any{
		"service_id": 1,
		"start":      start,
		"end":        end,
		"client":     map[string]any{"name": "Анна", "phone": "+79990001122"},
		"hold_id":    holdID,
		"owner_ref":  "client-a",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	booking := decodeBody(t, rec)
	assert.Equal(t, "pending", booking["status"])
	bookingID := int64(booking["id"].(float64))
	version := int64(booking["version"].(float64))

	rec = f.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/bookings/%d/status", bookingID), storeKey,
		map[string]any{"status": "confirmed", "version": version})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "confirmed", decodeBody(t, rec)["status"])

	// Устаревшая версия проигрывает
	rec = f.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/bookings/%d/status", bookingID), storeKey,
		map[string]any{"status": "cancelled", "version": version})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decodeBody(t, rec)["code"])

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", bookingID), storeKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "confirmed", decodeBody(t, rec)["status"])
}

func TestErrorCodes(t *testing.T) {
	f := newFixture(t, testAPIConfig())
	f.addWindow(t, 9, 12, 1)

	start, end := slotBody(10, 11)
	bookingBody := func() map[string]any {
		return map[string]any{
			"service_id": 1,
			"start":      start,
			"end":        end,
			"client":     map[string]any{"name": "Анна"},
		}
	}

	// Вне любого окна
	outStart, outEnd := slotBody(20, 21)
	out := bookingBody()
	out["start"], out["end"] = outStart, outEnd
	rec := f.do(t, http.MethodPost, "/api/v1/bookings", storeKey, out)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "OUTSIDE_AVAILABILITY", decodeBody(t, rec)["code"])

	// Первая бронь выигрывает слот
	rec = f.do(t, http.MethodPost, "/api/v1/bookings", storeKey, bookingBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/bookings", storeKey, bookingBody())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SLOT_CONFLICT", decodeBody(t, rec)["code"])

	// Блок закрывает свободный диапазон
	blockStart, blockEnd := slotBody(11, 12)
	rec = f.do(t, http.MethodPost, "/api/v1/admin/blocks", adminKey, map[string]any{
		"scope": "", "start": blockStart, "end": blockEnd, "reason": "maintenance",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	blocked := bookingBody()
	blocked["start"], blocked["end"] = blockStart, blockEnd
	rec = f.do(t, http.MethodPost, "/api/v1/bookings", storeKey, blocked)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "BLOCKED", decodeBody(t, rec)["code"])

	// Пустое имя клиента
	invalid := bookingBody()
	invalid["client"] = map[string]any{"name": ""}
	invalid["start"], invalid["end"] = slotBody(9, 10)
	rec = f.do(t, http.MethodPost, "/api/v1/bookings", storeKey, invalid)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeBody(t, rec)["code"])
}

func TestAvailabilitySnapshots(t *testing.T) {
	f := newFixture(t, testAPIConfig())
	f.addWindow(t, 9, 18, 3)

	start, end := slotBody(10, 11)
	rec := f.do(t, http.MethodPost, "/api/v1/holds", storeKey, map[string]any{
		"owner_ref":  "client-a",
		"service_id": 1,
		"start":      start,
		"end":        end,
		"capacity":   2,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/availability?service_id=1&"+hourQuery(9, 18), storeKey, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Snapshots []models.CapacitySnapshot `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Snapshots, 1)
	assert.Equal(t, 3, resp.Snapshots[0].Total)
	assert.Equal(t, 2, resp.Snapshots[0].Used)
	assert.Equal(t, 1, resp.Snapshots[0].Remaining)

	rec = f.do(t, http.MethodGet, "/api/v1/availability?service_id=1&from=garbage&to=also", storeKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWindowOverlapRejected(t *testing.T) {
	f := newFixture(t, testAPIConfig())
	f.addWindow(t, 9, 12, 1)

	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	rec := f.do(t, http.MethodPost, "/api/v1/admin/windows", adminKey, map[string]any{
		"service_type":  "lips",
		"location_type": "studio",
		"start":         day.Add(11 * time.Hour),
		"end":           day.Add(14 * time.Hour),
		"capacity":      1,
		"is_open":       true,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decodeBody(t, rec)["code"])
}

func TestWindowUpdate(t *testing.T) {
	f := newFixture(t, testAPIConfig())
	window := f.addWindow(t, 9, 12, 1)
	windowID := int64(window["id"].(float64))

	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	rec := f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/admin/windows/%d", windowID), adminKey, map[string]any{
		"service_type":  "lips",
		"location_type": "studio",
		"start":         day.Add(9 * time.Hour),
		"end":           day.Add(12 * time.Hour),
		"capacity":      4,
		"is_open":       true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/availability?service_id=1&"+hourQuery(9, 12), storeKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Snapshots []models.CapacitySnapshot `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Snapshots, 1)
	assert.Equal(t, 4, resp.Snapshots[0].Total)
}

func TestPerKeyRateLimit(t *testing.T) {
	cfg := testAPIConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 1}
	f := newFixture(t, cfg)

	rec := f.do(t, http.MethodGet, "/api/v1/services", storeKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/services", storeKey, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Другой ключ живет со своим лимитером
	rec = f.do(t, http.MethodGet, "/api/v1/services", adminKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExportEndpoint(t *testing.T) {
	f := newFixture(t, testAPIConfig())
	f.addWindow(t, 9, 18, 1)

	start, end := slotBody(10, 11)
	rec := f.do(t, http.MethodPost, "/api/v1/bookings", storeKey, map[string]any{
		"service_id": 1,
		"start":      start,
		"end":        end,
		"client":     map[string]any{"name": "Анна"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/admin/export?"+hourQuery(0, 24), adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	assert.NotZero(t, rec.Body.Len())

	rec = f.do(t, http.MethodGet, "/api/v1/admin/export?"+hourQuery(0, 24), storeKey, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
