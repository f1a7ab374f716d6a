package retrier

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSucceedsAfterTransientFailures(t *testing.T) {
	r := New(3, time.Millisecond)

	attempts := 0
	got, err := DoWithData(context.Background(), r, func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("unexpected value: %q", got)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExhaustsAttempts(t *testing.T) {
	r := New(2, time.Millisecond)

	lastErr := errors.New("down")
	attempts := 0
	err := r.Do(context.Background(), func(context.Context) error {
		attempts++
		return lastErr
	})
	if attempts != 3 {
		t.Fatalf("expected maxRetries+1 = 3 attempts, got %d", attempts)
	}
	if !errors.Is(err, lastErr) {
		t.Fatalf("expected last error to propagate, got %v", err)
	}
}

func TestPermanentStopsRetries(t *testing.T) {
	r := New(5, time.Millisecond)

	notFound := errors.New("no such thing")
	attempts := 0
	err := r.Do(context.Background(), func(context.Context) error {
		attempts++
		return Permanent(notFound)
	})
	if attempts != 1 {
		t.Fatalf("permanent error must not be retried, got %d attempts", attempts)
	}
	if !errors.Is(err, notFound) {
		t.Fatalf("expected original error to propagate, got %v", err)
	}
}

func TestContextAborts(t *testing.T) {
	r := New(10, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	attempts := 0
	err := r.Do(ctx, func(context.Context) error {
		attempts++
		return errors.New("down")
	})
	if err == nil {
		t.Fatalf("expected error after context timeout")
	}
	if attempts > 3 {
		t.Fatalf("context should stop retries early, got %d attempts", attempts)
	}
}
