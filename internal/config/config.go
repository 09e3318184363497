package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"slotnik/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig            `yaml:"app"`
	Database   DatabaseConfig       `yaml:"database"`
	Redis      RedisConfig          `yaml:"redis"`
	Monitoring MonitoringConfig     `yaml:"monitoring"`
	Logging    LoggingConfig        `yaml:"logging"`
	API        APIConfig            `yaml:"api"`
	Booking    BookingConfig        `yaml:"booking"`
	Services   []models.Service     `yaml:"services"`
	Windows    []WindowSeed         `yaml:"windows"`
	Exports    ExportConfig         `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_seconds"`
	WriteTimeoutSec int `yaml:"write_timeout_seconds"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// BookingConfig tunes the reservation engine.
type BookingConfig struct {
	HoldTTLMinutes        int `yaml:"hold_ttl_minutes"`
	ReaperIntervalSeconds int `yaml:"reaper_interval_seconds"`
	ReaperBatchSize       int `yaml:"reaper_batch_size"`
	MaxAdvanceDays        int `yaml:"max_advance_days"`
	SessionTTLMinutes     int `yaml:"session_ttl_minutes"`
	HoldRateLimit         int `yaml:"hold_rate_limit"`
	HoldRateWindowSeconds int `yaml:"hold_rate_window_seconds"`
}

func (b BookingConfig) HoldTTL() time.Duration {
	return time.Duration(b.HoldTTLMinutes) * time.Minute
}

func (b BookingConfig) ReaperInterval() time.Duration {
	return time.Duration(b.ReaperIntervalSeconds) * time.Second
}

func (b BookingConfig) SessionTTL() time.Duration {
	return time.Duration(b.SessionTTLMinutes) * time.Minute
}

func (b BookingConfig) HoldRateWindow() time.Duration {
	return time.Duration(b.HoldRateWindowSeconds) * time.Second
}

// WindowSeed describes an availability window created at startup if the
// store is empty. Day-to-day windows come through the admin API.
type WindowSeed struct {
	ServiceType  string    `yaml:"service_type"`
	LocationType string    `yaml:"location_type"`
	Start        time.Time `yaml:"start"`
	End          time.Time `yaml:"end"`
	Capacity     int       `yaml:"capacity"`
	IsOpen       bool      `yaml:"is_open"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env переопределяет плейсхолдеры в YAML
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.API.Enabled && c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api auth enabled but no api keys configured")
	}

	if err := ValidateServices(c.Services); err != nil {
		return err
	}

	for i, w := range c.Windows {
		if w.ServiceType == "" {
			return fmt.Errorf("window seed %d has empty service_type", i)
		}
		if !w.End.After(w.Start) {
			return fmt.Errorf("window seed %d has end before start", i)
		}
		if w.Capacity < 1 {
			return fmt.Errorf("window seed %d has capacity < 1", i)
		}
	}

	return nil
}

func ValidateServices(services []models.Service) error {
	seen := make(map[int64]bool)
	for _, svc := range services {
		if svc.ID == 0 {
			return fmt.Errorf("service '%s' has invalid ID 0", svc.Name)
		}
		if seen[svc.ID] {
			return fmt.Errorf("duplicate service ID found: %d", svc.ID)
		}
		if svc.ServiceType == "" {
			return fmt.Errorf("service '%s' has empty service_type", svc.Name)
		}
		seen[svc.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.ReadTimeoutSec == 0 {
		c.API.HTTP.ReadTimeoutSec = 5
	}
	if c.API.HTTP.WriteTimeoutSec == 0 {
		c.API.HTTP.WriteTimeoutSec = 15
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}

	// Booking engine defaults
	if c.Booking.HoldTTLMinutes == 0 {
		c.Booking.HoldTTLMinutes = models.DefaultHoldTTLMinutes
	}
	if c.Booking.ReaperIntervalSeconds == 0 {
		c.Booking.ReaperIntervalSeconds = models.DefaultReaperIntervalSeconds
	}
	if c.Booking.ReaperBatchSize == 0 {
		c.Booking.ReaperBatchSize = models.DefaultReaperBatchSize
	}
	if c.Booking.MaxAdvanceDays == 0 {
		c.Booking.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if c.Booking.SessionTTLMinutes == 0 {
		c.Booking.SessionTTLMinutes = models.DefaultSessionTTLMinutes
	}
	if c.Booking.HoldRateLimit == 0 {
		c.Booking.HoldRateLimit = models.DefaultHoldRateLimit
	}
	if c.Booking.HoldRateWindowSeconds == 0 {
		c.Booking.HoldRateWindowSeconds = models.DefaultHoldRateWindowSeconds
	}
}
