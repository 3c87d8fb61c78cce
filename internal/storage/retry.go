package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"modernc.org/sqlite"
)

// Primary result codes, see https://www.sqlite.org/rescode.html.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// IsTransient reports whether err is worth retrying: a busy or locked
// database, or a dropped connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return true
		}
	}
	return false
}

// Retry runs fn until it succeeds, returns a non-transient error, or has been
// tried attempts times. The wait doubles after every transient failure.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil || !IsTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		wait := delay << i
		slog.Warn("transient database error, retrying", "attempt", i+1, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
}
