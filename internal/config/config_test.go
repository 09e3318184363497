package config

import (
	"os"
	"path/filepath"
	"testing"

	"slotnik/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
app:
  name: slotnik
  environment: test
  version: "0.1.0"
database:
  path: /tmp/slotnik-test.db
api:
  enabled: true
  http:
    port: 9191
  auth:
    enabled: true
    api_keys:
      - key: test-key
        name: tester
        permissions: ["admin"]
booking:
  hold_ttl_minutes: 5
services:
  - id: 1
    name: Lip filler
    service_type: lips
    location_type: studio
    duration_min: 60
    is_active: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "slotnik", cfg.App.Name)
	assert.Equal(t, 9191, cfg.API.HTTP.Port)
	assert.Equal(t, 5, cfg.Booking.HoldTTLMinutes)
	assert.Len(t, cfg.Services, 1)
	assert.Equal(t, "lips", cfg.Services[0].ServiceType)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/slotnik-test.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, models.DefaultHoldTTLMinutes, cfg.Booking.HoldTTLMinutes)
	assert.Equal(t, models.DefaultReaperIntervalSeconds, cfg.Booking.ReaperIntervalSeconds)
	assert.Equal(t, models.DefaultReaperBatchSize, cfg.Booking.ReaperBatchSize)
	assert.Equal(t, models.DefaultHoldRateLimit, cfg.Booking.HoldRateLimit)
}

func TestLoadMissingDatabasePath(t *testing.T) {
	path := writeConfig(t, `
app:
  name: slotnik
`)

	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database path")
}

func TestLoadAuthWithoutKeys(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/slotnik-test.db
api:
  enabled: true
  auth:
    enabled: true
`)

	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no api keys")
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("SLOTNIK_DB_PATH", "/tmp/from-env.db")

	path := writeConfig(t, `
database:
  path: ${SLOTNIK_DB_PATH}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-env.db", cfg.Database.Path)
}

func TestValidateServices(t *testing.T) {
	assert.NoError(t, ValidateServices(nil))

	err := ValidateServices([]models.Service{{ID: 0, Name: "broken"}})
	assert.Error(t, err)

	err = ValidateServices([]models.Service{
		{ID: 1, Name: "a", ServiceType: "lips"},
		{ID: 1, Name: "b", ServiceType: "brows"},
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	err = ValidateServices([]models.Service{{ID: 2, Name: "no type"}})
	assert.Error(t, err)
}

func TestWindowSeedValidation(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/slotnik-test.db
windows:
  - service_type: lips
    location_type: studio
    start: 2025-03-01T09:00:00Z
    end: 2025-03-01T08:00:00Z
    capacity: 1
    is_open: true
`)

	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "end before start")
}
