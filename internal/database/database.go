package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"slotnik/internal/domain"
	"slotnik/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB wraps the sqlite connection and caches the config-seeded service
// catalog. All engine state (windows, holds, bookings, blocks) lives here.
type DB struct {
	db  *sql.DB
	log zerolog.Logger

	mu       sync.RWMutex
	services map[int64]*models.Service
	sorted   []*models.Service
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if path == ":memory:" {
		// Каждое соединение пула получило бы собственную пустую базу.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	var log zerolog.Logger
	if logger != nil {
		log = logger.With().Str("component", "database").Logger()
	}
	log.Info().Str("path", path).Msg("database initialized")

	return &DB{
		db:       db,
		log:      log,
		services: make(map[int64]*models.Service),
	}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS windows (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            service_type TEXT NOT NULL,
            location_type TEXT NOT NULL,
            start_at DATETIME NOT NULL,
            end_at DATETIME NOT NULL,
            capacity INTEGER NOT NULL,
            is_open BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS holds (
            id TEXT PRIMARY KEY,
            owner_ref TEXT NOT NULL,
            service_id INTEGER NOT NULL,
            service_type TEXT NOT NULL,
            location_type TEXT NOT NULL,
            start_at DATETIME NOT NULL,
            end_at DATETIME NOT NULL,
            capacity INTEGER NOT NULL,
            expires_at DATETIME NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            service_id INTEGER NOT NULL,
            service_name TEXT NOT NULL,
            service_type TEXT NOT NULL,
            location_type TEXT NOT NULL,
            start_at DATETIME NOT NULL,
            end_at DATETIME NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            capacity INTEGER NOT NULL,
            client_name TEXT NOT NULL,
            client_phone TEXT,
            client_email TEXT,
            notes TEXT,
            version INTEGER NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS blocks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            scope TEXT NOT NULL DEFAULT '',
            start_at DATETIME NOT NULL,
            end_at DATETIME NOT NULL,
            reason TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE INDEX IF NOT EXISTS idx_windows_key ON windows(service_type, location_type, start_at)`,
		`CREATE INDEX IF NOT EXISTS idx_holds_key ON holds(service_type, location_type, start_at)`,
		`CREATE INDEX IF NOT EXISTS idx_holds_expires ON holds(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_key ON bookings(service_type, location_type, start_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_range ON blocks(start_at, end_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("execute %q: %w", query, err)
		}
	}
	return nil
}

// SetServices replaces the cached service catalog.
func (db *DB) SetServices(services []models.Service) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.services = make(map[int64]*models.Service, len(services))
	db.sorted = db.sorted[:0]
	for i := range services {
		svc := services[i]
		db.services[svc.ID] = &svc
		db.sorted = append(db.sorted, &svc)
	}
	sort.Slice(db.sorted, func(i, j int) bool { return db.sorted[i].ID < db.sorted[j].ID })
}

func (db *DB) GetService(ctx context.Context, id int64) (*models.Service, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	svc, ok := db.services[id]
	if !ok || !svc.IsActive {
		return nil, fmt.Errorf("%w: service %d", domain.ErrNotFound, id)
	}
	return svc, nil
}

func (db *DB) ListServices() []*models.Service {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]*models.Service, len(db.sorted))
	copy(out, db.sorted)
	return out
}

func (db *DB) Close() error {
	return db.db.Close()
}
