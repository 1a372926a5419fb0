package utils

import (
	"context"
	"testing"
	"time"
)

func TestConstantBackoff(t *testing.T) {
	backoff := ConstantBackoff{Delay: 100 * time.Millisecond}
	for i := 0; i < 5; i++ {
		if d := backoff.NextDelay(i); d != 100*time.Millisecond {
			t.Errorf("Attempt %d: expected 100ms, got %v", i, d)
		}
	}
}

func TestLinearBackoff(t *testing.T) {
	backoff := LinearBackoff{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{2, 300 * time.Millisecond},
		{9, time.Second},
		{20, time.Second},
	}
	for _, tt := range tests {
		if d := backoff.NextDelay(tt.attempt); d != tt.expected {
			t.Errorf("Attempt %d: expected %v, got %v", tt.attempt, tt.expected, d)
		}
	}
}

func TestExponentialBackoff(t *testing.T) {
	backoff := ExponentialBackoff{BaseDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 10 * time.Second}
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{10, 10 * time.Second},
	}
	for _, tt := range tests {
		if d := backoff.NextDelay(tt.attempt); d != tt.expected {
			t.Errorf("Attempt %d: expected %v, got %v", tt.attempt, tt.expected, d)
		}
	}
}

func TestExponentialBackoffJitterRange(t *testing.T) {
	backoff := ExponentialBackoff{BaseDelay: 100 * time.Millisecond, MaxDelay: 10 * time.Second, Jitter: true}
	for attempt := 0; attempt < 5; attempt++ {
		base := float64(100*time.Millisecond) * float64(uint(1)<<uint(attempt))
		d := backoff.NextDelay(attempt)
		if d < time.Duration(base*0.5) || d > time.Duration(base*1.5) {
			t.Errorf("Attempt %d: delay %v outside jitter range", attempt, d)
		}
	}
}

func TestBackoffFromConfig(t *testing.T) {
	if _, ok := BackoffFromConfig("constant", 100, 0).(ConstantBackoff); !ok {
		t.Error("expected ConstantBackoff")
	}
	if _, ok := BackoffFromConfig("linear", 100, 1000).(LinearBackoff); !ok {
		t.Error("expected LinearBackoff")
	}
	eb, ok := BackoffFromConfig("unknown", 100, 0).(ExponentialBackoff)
	if !ok {
		t.Fatal("expected ExponentialBackoff fallback")
	}
	if eb.MaxDelay != 30*time.Second {
		t.Errorf("expected 30s default max delay, got %v", eb.MaxDelay)
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Sleep(ctx, time.Minute); err == nil {
		t.Fatal("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Fatal("Sleep did not return promptly on cancelled context")
	}
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
