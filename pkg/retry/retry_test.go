package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return nil
	}, fastConfig(4))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary failure")
		}
		return nil
	}, fastConfig(5))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	wantErr := errors.New("permanent failure")
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return wantErr
	}, fastConfig(3))

	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_RetryIfStopsEarly(t *testing.T) {
	fatal := errors.New("nonce desync")
	calls := 0
	cfg := fastConfig(5)
	cfg.RetryIf = func(err error) bool {
		return !errors.Is(err, fatal)
	}

	err := Do(context.Background(), func() error {
		calls++
		return fatal
	}, cfg)

	if !errors.Is(err, fatal) {
		t.Fatalf("err = %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry for fatal error)", calls)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func() error {
		t.Fatal("operation should not run with cancelled context")
		return nil
	}, fastConfig(3))

	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("not yet")
		}
		return 42, nil
	}, fastConfig(4))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("result = %d, want 42", got)
	}
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}

	_ = Do(context.Background(), func() error {
		return errors.New("fail")
	}, cfg)

	// 3 попытки = 2 повтора
	if len(attempts) != 2 {
		t.Fatalf("OnRetry called %d times, want 2", len(attempts))
	}
	if attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("attempts = %v, want [1 2]", attempts)
	}
}

type venueError struct {
	code      int
	retryable bool
}

func (e *venueError) Error() string   { return fmt.Sprintf("venue error %d", e.code) }
func (e *venueError) Retryable() bool { return e.retryable }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"retryable venue error", &venueError{code: 503, retryable: true}, true},
		{"non-retryable venue error", &venueError{code: 400, retryable: false}, false},
		{"wrapped retryable", fmt.Errorf("place order: %w", &venueError{code: 429, retryable: true}), true},
		{"plain error", errors.New("boom"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateDelay_Bounded(t *testing.T) {
	cfg := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		JitterFactor: 0,
	}
	cfg.validate()

	for attempt := 0; attempt < 10; attempt++ {
		d := cfg.calculateDelay(attempt)
		if d > cfg.MaxDelay {
			t.Errorf("attempt %d: delay %v exceeds max %v", attempt, d, cfg.MaxDelay)
		}
	}

	// Без jitter рост строго экспоненциальный до потолка
	if d := cfg.calculateDelay(1); d != 200*time.Millisecond {
		t.Errorf("delay(1) = %v, want 200ms", d)
	}
}
