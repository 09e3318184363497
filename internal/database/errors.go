package database

import (
	"errors"
	"fmt"

	"slotnik/internal/domain"

	"github.com/mattn/go-sqlite3"
)

// storageErr wraps a sqlite failure, marking lock contention as transient so
// callers can retry with backoff. Everything else surfaces as-is.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %s: %v", domain.ErrTransientStorage, op, err)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
