package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseInterval(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"1m", time.Minute},
		{"15m", 15 * time.Minute},
		{"4h", 4 * time.Hour},
		{"1d", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
	}
	for _, tc := range cases {
		got, err := ParseInterval(tc.in)
		if err != nil {
			t.Errorf("ParseInterval(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseInterval(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseIntervalInvalid(t *testing.T) {
	for _, in := range []string{"", "m", "1x", "-5m", "0h", "abc"} {
		if _, err := ParseInterval(in); err == nil {
			t.Errorf("ParseInterval(%q) should fail", in)
		}
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	ts := int64(1704153600) // 2024-01-02 00:00:00 UTC
	tm := TimestampToTime(ts)
	if tm.Year() != 2024 || tm.Month() != time.January || tm.Day() != 2 {
		t.Errorf("TimestampToTime(%d) = %v", ts, tm)
	}
	if back := TimeToTimestamp(tm); back != ts {
		t.Errorf("TimeToTimestamp round trip = %d, want %d", back, ts)
	}
}

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
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

	err := Retry(context.Background(), maxAttempts, 0, func() error {
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

func TestRetryPermanentStopsEarly(t *testing.T) {
	attempts := 0
	sentinel := errors.New("bad credentials")

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		return Permanent(sentinel)
	})

	if !errors.Is(err, sentinel) {
		t.Fatalf("Retry = %v, want %v", err, sentinel)
	}
	if attempts != 1 {
		t.Errorf("Retry called fn %d times, want 1", attempts)
	}
}

func TestRateLimiterWait(t *testing.T) {
	rl := NewRateLimiter(6000) // 100/s, effectively immediate
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestRateLimiterBurst(t *testing.T) {
	rl := NewBurstRateLimiter(1, 3) // negligible refill, three-token burst
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("burst Wait %d: %v", i, err)
		}
	}
	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("fourth Wait = %v, want context.DeadlineExceeded", err)
	}
}

func TestRateLimiterCancelled(t *testing.T) {
	rl := NewRateLimiter(1) // 1/min, so a second token takes ~a minute
	ctx, cancel := context.WithCancel(context.Background())

	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait after cancel = %v, want context.Canceled", err)
	}
}
