package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_Success(t *testing.T) {
	attempts := 0

	err := Do(context.Background(), testConfig(), nil, func(ctx context.Context) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Do() returned error = %v, want nil", err)
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
}

func TestDo_PermanentError(t *testing.T) {
	attempts := 0
	permanentErr := errors.New("permanent")

	classifier := func(err error) bool {
		return !errors.Is(err, permanentErr)
	}

	err := Do(context.Background(), testConfig(), classifier, func(ctx context.Context) error {
		attempts++
		return permanentErr
	})

	if !errors.Is(err, permanentErr) {
		t.Errorf("Do() returned error = %v, want %v", err, permanentErr)
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
}

func TestDo_RetryableError(t *testing.T) {
	attempts := 0
	tempErr := errors.New("temporary")

	err := Do(context.Background(), testConfig(), IsRetryable, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return tempErr
		}
		return nil
	})

	if err != nil {
		t.Errorf("Do() returned error = %v, want nil", err)
	}
	if attempts != 3 {
		t.Errorf("Do() made %d attempts, want 3", attempts)
	}
}

func TestDo_MaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	tempErr := errors.New("temporary")
	cfg := testConfig()

	err := Do(context.Background(), cfg, IsRetryable, func(ctx context.Context) error {
		attempts++
		return tempErr
	})

	if attempts != cfg.MaxAttempts {
		t.Errorf("Do() made %d attempts, want %d", attempts, cfg.MaxAttempts)
	}
	if !errors.Is(err, tempErr) {
		t.Errorf("Do() returned error = %v, want wrapped %v", err, tempErr)
	}

	var retryErr *RetryableError
	if !errors.As(err, &retryErr) {
		t.Fatalf("Do() returned %T, want *RetryableError", err)
	}
	if retryErr.Attempts != cfg.MaxAttempts {
		t.Errorf("RetryableError.Attempts = %d, want %d", retryErr.Attempts, cfg.MaxAttempts)
	}
}

func TestDo_StrictlyIncreasingDelay(t *testing.T) {
	cfg := Config{
		MaxAttempts:    3,
		InitialBackoff: 20 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}

	var stamps []time.Time
	tempErr := errors.New("temporary")

	_ = Do(context.Background(), cfg, IsRetryable, func(ctx context.Context) error {
		stamps = append(stamps, time.Now())
		return tempErr
	})

	if len(stamps) != 3 {
		t.Fatalf("got %d attempts, want 3", len(stamps))
	}
	first := stamps[1].Sub(stamps[0])
	second := stamps[2].Sub(stamps[1])
	if second <= first {
		t.Errorf("delays not strictly increasing: first=%v second=%v", first, second)
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	attempts := 0
	tempErr := errors.New("temporary")
	cfg := Config{
		MaxAttempts:    5,
		InitialBackoff: time.Hour, // never elapses
		Multiplier:     2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())

	err := Do(ctx, cfg, IsRetryable, func(ctx context.Context) error {
		attempts++
		cancel()
		return tempErr
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() returned error = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
}

func TestIsRetryable_ContextErrors(t *testing.T) {
	if IsRetryable(context.Canceled) {
		t.Error("IsRetryable(context.Canceled) = true, want false")
	}
	if IsRetryable(context.DeadlineExceeded) {
		t.Error("IsRetryable(context.DeadlineExceeded) = true, want false")
	}
	if !IsRetryable(errors.New("network hiccup")) {
		t.Error("IsRetryable(generic error) = false, want true")
	}
}
