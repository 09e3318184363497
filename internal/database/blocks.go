package database

import (
	"context"
	"fmt"
	"time"

	"slotnik/internal/domain"
	"slotnik/internal/models"
)

// CreateBlock inserts a calendar block. Scope "" means the block freezes
// every service/location key; uniqueness against other blocks is checked by
// the caller under its block mutex.
func (db *DB) CreateBlock(ctx context.Context, b *models.CalendarBlock) error {
	query := `INSERT INTO blocks (scope, start_at, end_at, reason, created_at) VALUES (?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.db.ExecContext(ctx, query, b.Scope, b.Range.Start, b.Range.End, b.Reason, now)
	if err != nil {
		return storageErr("insert block", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return storageErr("block insert id", err)
	}
	b.ID = id
	b.CreatedAt = now
	return nil
}

func (db *DB) DeleteBlock(ctx context.Context, id int64) error {
	result, err := db.db.ExecContext(ctx, `DELETE FROM blocks WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete block", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: block %d", domain.ErrNotFound, id)
	}
	return nil
}

func (db *DB) ListBlocks(ctx context.Context) ([]*models.CalendarBlock, error) {
	query := `SELECT id, scope, start_at, end_at, reason, created_at FROM blocks ORDER BY start_at ASC`
	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr("list blocks", err)
	}
	defer rows.Close()

	var blocks []*models.CalendarBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, storageErr("scan block", err)
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list blocks", err)
	}
	return blocks, nil
}

// HasBlockOverlap reports whether any block affecting scope overlaps r.
// Global blocks (scope '') hit every scope.
func (db *DB) HasBlockOverlap(ctx context.Context, scope string, r models.TimeRange) (bool, error) {
	query := `SELECT COUNT(1) FROM blocks
              WHERE (scope = '' OR scope = ?)
              AND start_at < ? AND end_at > ?`
	var count int
	err := db.db.QueryRowContext(ctx, query, scope, r.End, r.Start).Scan(&count)
	if err != nil {
		return false, storageErr("block overlap", err)
	}
	return count > 0, nil
}

// HasBlockScopeOverlap enforces block uniqueness when creating a new block:
// a global candidate may not overlap any block, a scoped candidate may not
// overlap blocks of the same scope or global ones.
func (db *DB) HasBlockScopeOverlap(ctx context.Context, scope string, r models.TimeRange) (bool, error) {
	var query string
	args := []interface{}{}
	if scope == "" {
		query = `SELECT COUNT(1) FROM blocks WHERE start_at < ? AND end_at > ?`
		args = append(args, r.End, r.Start)
	} else {
		query = `SELECT COUNT(1) FROM blocks
                 WHERE (scope = '' OR scope = ?)
                 AND start_at < ? AND end_at > ?`
		args = append(args, scope, r.End, r.Start)
	}
	var count int
	err := db.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return false, storageErr("block scope overlap", err)
	}
	return count > 0, nil
}

func scanBlock(row rowScanner) (*models.CalendarBlock, error) {
	b := &models.CalendarBlock{}
	var start, end time.Time
	err := row.Scan(&b.ID, &b.Scope, &start, &end, &b.Reason, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.Range = models.NewTimeRange(start, end)
	return b, nil
}
