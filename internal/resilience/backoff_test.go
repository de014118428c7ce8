package resilience

import (
	"testing"
	"time"
)

func TestDelayDoublesAndCaps(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{20, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := Delay(tt.attempt, time.Second, 30*time.Second); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayNonDecreasing(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 0; attempt < 10; attempt++ {
		d := Delay(attempt, time.Second, 30*time.Second)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %s < %s", attempt, d, prev)
		}
		prev = d
	}
}

func TestDelayZeroBase(t *testing.T) {
	if got := Delay(3, 0, time.Minute); got != 0 {
		t.Errorf("expected 0 for zero base, got %s", got)
	}
}

func TestJitterBounds(t *testing.T) {
	base := 10 * time.Second
	for i := 0; i < 100; i++ {
		j := Jitter(base)
		if j < base {
			t.Fatalf("jitter reduced the delay: %s", j)
		}
		if j > base+base/10 {
			t.Fatalf("jitter exceeded 10%%: %s", j)
		}
	}
}
