package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsTransient(t *testing.T) {
	if !IsTransient(driver.ErrBadConn) {
		t.Error("ErrBadConn should be transient")
	}
	if !IsTransient(fmt.Errorf("saving: %w", driver.ErrBadConn)) {
		t.Error("wrapped ErrBadConn should be transient")
	}
	if IsTransient(errors.New("UNIQUE constraint failed")) {
		t.Error("plain error should not be transient")
	}
	if IsTransient(nil) {
		t.Error("nil should not be transient")
	}
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return driver.ErrBadConn
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_NonTransientSurfacesImmediately(t *testing.T) {
	boom := errors.New("constraint violation")
	calls := 0
	err := Retry(context.Background(), 5, time.Millisecond, func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, time.Millisecond, func(context.Context) error {
		calls++
		return driver.ErrBadConn
	})
	if !errors.Is(err, driver.ErrBadConn) {
		t.Errorf("err = %v, want ErrBadConn", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetry_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Retry(ctx, 3, time.Hour, func(context.Context) error {
		cancel()
		return driver.ErrBadConn
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
