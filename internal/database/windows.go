package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"slotnik/internal/domain"
	"slotnik/internal/models"
)

func (db *DB) CreateWindow(ctx context.Context, w *models.AvailabilityWindow) error {
	query := `INSERT INTO windows (service_type, location_type, start_at, end_at, capacity, is_open, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.db.ExecContext(ctx, query,
		w.ServiceType,
		w.LocationType,
		w.Range.Start,
		w.Range.End,
		w.Capacity,
		w.IsOpen,
		now,
		now,
	)
	if err != nil {
		return storageErr("create window", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storageErr("create window id", err)
	}
	w.ID = id
	w.CreatedAt = now
	w.UpdatedAt = now
	return nil
}

func (db *DB) UpdateWindow(ctx context.Context, w *models.AvailabilityWindow) error {
	query := `UPDATE windows SET service_type = ?, location_type = ?, start_at = ?, end_at = ?, capacity = ?, is_open = ?, updated_at = ?
              WHERE id = ?`
	result, err := db.db.ExecContext(ctx, query,
		w.ServiceType, w.LocationType, w.Range.Start, w.Range.End, w.Capacity, w.IsOpen, time.Now().UTC(), w.ID)
	if err != nil {
		return storageErr("update window", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: window %d", domain.ErrNotFound, w.ID)
	}
	return nil
}

func (db *DB) DeleteWindow(ctx context.Context, id int64) error {
	result, err := db.db.ExecContext(ctx, `DELETE FROM windows WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete window", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: window %d", domain.ErrNotFound, id)
	}
	return nil
}

func (db *DB) GetWindow(ctx context.Context, id int64) (*models.AvailabilityWindow, error) {
	query := `SELECT id, service_type, location_type, start_at, end_at, capacity, is_open, created_at, updated_at
              FROM windows WHERE id = ?`
	w, err := scanWindow(db.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: window %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, storageErr("get window", err)
	}
	return w, nil
}

func (db *DB) ListWindows(ctx context.Context) ([]*models.AvailabilityWindow, error) {
	query := `SELECT id, service_type, location_type, start_at, end_at, capacity, is_open, created_at, updated_at
              FROM windows ORDER BY service_type, location_type, start_at`
	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr("list windows", err)
	}
	defer rows.Close()

	var windows []*models.AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, storageErr("scan window", err)
		}
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list windows", err)
	}
	return windows, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWindow(row rowScanner) (*models.AvailabilityWindow, error) {
	w := &models.AvailabilityWindow{}
	var start, end time.Time
	err := row.Scan(&w.ID, &w.ServiceType, &w.LocationType, &start, &end, &w.Capacity, &w.IsOpen, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.Range = models.NewTimeRange(start, end)
	return w, nil
}
