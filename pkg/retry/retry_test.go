package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_SucceedsFirstTry(t *testing.T) {
	attempts := 0
	err := NewDefaultRetrier().Do(context.Background(), func() error {
		attempts++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestDo_SucceedsAfterTransientFailure(t *testing.T) {
	cfg := &Config{MaxRetries: 3, BackoffFactor: 2, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Jitter: time.Millisecond}
	attempts := 0
	err := NewRetrier(cfg).Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_ReturnsLastErrorWhenExhausted(t *testing.T) {
	cfg := &Config{MaxRetries: 2, BackoffFactor: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Jitter: time.Millisecond}
	wantErr := errors.New("still locked")
	attempts := 0
	err := NewRetrier(cfg).Do(context.Background(), func() error {
		attempts++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected %v, got %v", wantErr, err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := NewDefaultRetrier().Do(ctx, func() error {
		cancel()
		return errors.New("failing")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
