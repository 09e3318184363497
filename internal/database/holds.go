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

func (db *DB) CreateHold(ctx context.Context, h *models.Hold) error {
	query := `INSERT INTO holds (id, owner_ref, service_id, service_type, location_type, start_at, end_at, capacity, expires_at, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	_, err := db.db.ExecContext(ctx, query,
		h.ID,
		h.OwnerRef,
		h.ServiceID,
		h.ServiceType,
		h.LocationType,
		h.Range.Start,
		h.Range.End,
		h.Capacity,
		h.ExpiresAt,
		now,
	)
	if err != nil {
		return storageErr("create hold", err)
	}
	h.CreatedAt = now
	return nil
}

func (db *DB) GetHold(ctx context.Context, id string) (*models.Hold, error) {
	query := `SELECT id, owner_ref, service_id, service_type, location_type, start_at, end_at, capacity, expires_at, created_at
              FROM holds WHERE id = ?`
	h, err := scanHold(db.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: hold %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, storageErr("get hold", err)
	}
	return h, nil
}

// DeleteHold removes a hold and reports whether a row was actually deleted,
// so callers can release capacity exactly once.
func (db *DB) DeleteHold(ctx context.Context, id string) (bool, error) {
	result, err := db.db.ExecContext(ctx, `DELETE FROM holds WHERE id = ?`, id)
	if err != nil {
		return false, storageErr("delete hold", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (db *DB) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*models.Hold, error) {
	query := `SELECT id, owner_ref, service_id, service_type, location_type, start_at, end_at, capacity, expires_at, created_at
              FROM holds WHERE expires_at <= ? ORDER BY expires_at ASC LIMIT ?`
	rows, err := db.db.QueryContext(ctx, query, now.UTC(), limit)
	if err != nil {
		return nil, storageErr("list expired holds", err)
	}
	defer rows.Close()

	var holds []*models.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, storageErr("scan hold", err)
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list expired holds", err)
	}
	return holds, nil
}

// SumHoldCapacity sums reserved capacity over live holds that overlap r for
// the given (service type, location type) key. excludeID skips the hold
// being converted into a booking so it is not double-counted.
func (db *DB) SumHoldCapacity(ctx context.Context, serviceType, locationType string, r models.TimeRange, now time.Time, excludeID string) (int, error) {
	query := `SELECT COALESCE(SUM(capacity), 0) FROM holds
              WHERE service_type = ? AND location_type = ?
              AND expires_at > ?
              AND start_at < ? AND end_at > ?`
	args := []any{serviceType, locationType, now.UTC(), r.End, r.Start}
	if excludeID != "" {
		query += ` AND id != ?`
		args = append(args, excludeID)
	}

	var sum int
	if err := db.db.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return 0, storageErr("sum hold capacity", err)
	}
	return sum, nil
}

func scanHold(row rowScanner) (*models.Hold, error) {
	h := &models.Hold{}
	var start, end time.Time
	err := row.Scan(&h.ID, &h.OwnerRef, &h.ServiceID, &h.ServiceType, &h.LocationType, &start, &end, &h.Capacity, &h.ExpiresAt, &h.CreatedAt)
	if err != nil {
		return nil, err
	}
	h.Range = models.NewTimeRange(start, end)
	h.ExpiresAt = h.ExpiresAt.UTC()
	return h, nil
}
