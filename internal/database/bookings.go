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

// CreateBooking inserts a booking and, when consumeHoldID is set, deletes the
// hold in the same transaction. The caller performs the conflict re-check
// under the window lock before calling this; the transaction only guarantees
// the hold cannot be consumed twice.
func (db *DB) CreateBooking(ctx context.Context, b *models.Booking, consumeHoldID string) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin booking tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if consumeHoldID != "" {
		result, err := tx.ExecContext(ctx, `DELETE FROM holds WHERE id = ?`, consumeHoldID)
		if err != nil {
			return storageErr("consume hold", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fmt.Errorf("%w: hold %s", domain.ErrNotFound, consumeHoldID)
		}
	}

	query := `INSERT INTO bookings (
                service_id, service_name, service_type, location_type,
                start_at, end_at, status, capacity,
                client_name, client_phone, client_email, notes,
                version, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, query,
		b.ServiceID,
		b.ServiceName,
		b.ServiceType,
		b.LocationType,
		b.Range.Start,
		b.Range.End,
		b.Status,
		b.Capacity,
		b.Client.Name,
		b.Client.Phone,
		b.Client.Email,
		b.Client.Notes,
		1,
		now,
		now,
	)
	if err != nil {
		return storageErr("insert booking", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storageErr("booking insert id", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit booking", err)
	}

	b.ID = id
	b.Version = 1
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT id, service_id, service_name, service_type, location_type,
                     start_at, end_at, status, capacity,
                     client_name, client_phone, client_email, notes,
                     version, created_at, updated_at
              FROM bookings WHERE id = ?`
	b, err := scanBooking(db.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: booking %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, storageErr("get booking", err)
	}
	return b, nil
}

// UpdateBookingStatusWithVersion performs an optimistic version-guarded
// status update. A zero rowcount means another writer got there first.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.db.ExecContext(ctx, query, status, time.Now().UTC(), id, fromVersion)
	if err != nil {
		return storageErr("update booking status", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

func (db *DB) ListBookingsByRange(ctx context.Context, from, to time.Time) ([]*models.Booking, error) {
	query := `SELECT id, service_id, service_name, service_type, location_type,
                     start_at, end_at, status, capacity,
                     client_name, client_phone, client_email, notes,
                     version, created_at, updated_at
              FROM bookings WHERE start_at < ? AND end_at > ? ORDER BY start_at ASC`
	rows, err := db.db.QueryContext(ctx, query, to.UTC(), from.UTC())
	if err != nil {
		return nil, storageErr("list bookings", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, storageErr("scan booking", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list bookings", err)
	}
	return bookings, nil
}

// SumBookingCapacity sums consumed capacity over active bookings overlapping
// r for the given (service type, location type) key, half-open.
func (db *DB) SumBookingCapacity(ctx context.Context, serviceType, locationType string, r models.TimeRange) (int, error) {
	query := `SELECT COALESCE(SUM(capacity), 0) FROM bookings
              WHERE service_type = ? AND location_type = ?
              AND status IN (?, ?)
              AND start_at < ? AND end_at > ?`

	var sum int
	err := db.db.QueryRowContext(ctx, query,
		serviceType, locationType,
		models.StatusPending, models.StatusConfirmed,
		r.End, r.Start,
	).Scan(&sum)
	if err != nil {
		return 0, storageErr("sum booking capacity", err)
	}
	return sum, nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	b := &models.Booking{}
	var start, end time.Time
	var phone, email, notes sql.NullString
	err := row.Scan(
		&b.ID, &b.ServiceID, &b.ServiceName, &b.ServiceType, &b.LocationType,
		&start, &end, &b.Status, &b.Capacity,
		&b.Client.Name, &phone, &email, &notes,
		&b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Range = models.NewTimeRange(start, end)
	b.Client.Phone = phone.String
	b.Client.Email = email.String
	b.Client.Notes = notes.String
	return b, nil
}
