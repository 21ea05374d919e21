package util

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), Backoff{Attempts: 5}, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), Backoff{Attempts: maxAttempts}, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, Backoff{Attempts: 3, Base: time.Hour}, func() error { return errors.New("down") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry error = %v, want context.Canceled", err)
	}
}

func TestRetryPermanent(t *testing.T) {
	bad := errors.New("bad address")
	attempts := 0
	err := Retry(context.Background(), Backoff{Attempts: 5}, func() error {
		attempts++
		return Permanent(bad)
	})
	if err != bad {
		t.Errorf("Retry error = %v, want the unwrapped permanent error", err)
	}
	if attempts != 1 {
		t.Errorf("Retry called fn %d times, want 1", attempts)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestRetryBackoffCap(t *testing.T) {
	start := time.Now()
	Retry(context.Background(), Backoff{Attempts: 4, Base: 10 * time.Millisecond, Max: 10 * time.Millisecond}, func() error {
		return errors.New("down")
	})
	// Three capped sleeps of 10ms; uncapped would be 70ms.
	if elapsed := time.Since(start); elapsed > 60*time.Millisecond {
		t.Errorf("Retry took %v, want the delay capped at 10ms", elapsed)
	}
}

func TestRateLimiterWait(t *testing.T) {
	rl := NewRateLimiter(60, 2)
	for i := 0; i < 2; i++ {
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatalf("burst Wait %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second Wait error = %v, want deadline exceeded", err)
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "warn", "text").Info("hidden")
	newLogger(&buf, "warn", "text").Warn("shown", "k", 1)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record logged at warn level: %q", out)
	}
	if !strings.Contains(out, "msg=shown") {
		t.Errorf("text output = %q, want msg=shown", out)
	}

	buf.Reset()
	newLogger(&buf, "info", "json").Info("hello")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("json output = %q, want a JSON object", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTradingCalendar(t *testing.T) {
	cal := NewTradingCalendar()
	ny := cal.loc

	// Wednesday 2024-06-12.
	tests := []struct {
		name string
		at   time.Time
		open bool
	}{
		{"before open", time.Date(2024, 6, 12, 9, 29, 0, 0, ny), false},
		{"at open", time.Date(2024, 6, 12, 9, 30, 0, 0, ny), true},
		{"midday", time.Date(2024, 6, 12, 12, 0, 0, 0, ny), true},
		{"at close", time.Date(2024, 6, 12, 16, 0, 0, 0, ny), false},
		{"saturday", time.Date(2024, 6, 15, 12, 0, 0, 0, ny), false},
	}
	for _, tt := range tests {
		if got := cal.IsMarketOpen(tt.at); got != tt.open {
			t.Errorf("%s: IsMarketOpen = %v, want %v", tt.name, got, tt.open)
		}
	}

	fri := time.Date(2024, 6, 14, 17, 0, 0, 0, ny)
	wantOpen := time.Date(2024, 6, 17, 9, 30, 0, 0, ny)
	if got := cal.NextOpen(fri); !got.Equal(wantOpen) {
		t.Errorf("NextOpen(friday evening) = %v, want %v", got, wantOpen)
	}
	wantClose := time.Date(2024, 6, 17, 16, 0, 0, 0, ny)
	if got := cal.NextClose(fri); !got.Equal(wantClose) {
		t.Errorf("NextClose(friday evening) = %v, want %v", got, wantClose)
	}

	morning := time.Date(2024, 6, 12, 8, 0, 0, 0, ny)
	if got := cal.NextOpen(morning); !got.Equal(time.Date(2024, 6, 12, 9, 30, 0, 0, ny)) {
		t.Errorf("NextOpen(morning) = %v, want same-day open", got)
	}
}
