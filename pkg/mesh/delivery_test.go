package mesh

import (
	"testing"
	"time"
)

func TestRetryDelayMonotoneUpToCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDelay := 30 * time.Second

	prev := time.Duration(0)
	for attempt := uint32(0); attempt <= 20; attempt++ {
		d := retryDelay(base, capDelay, attempt)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > capDelay {
			t.Fatalf("delay exceeds cap at attempt %d: %v", attempt, d)
		}
		prev = d
	}
}

func TestRetryDelayValues(t *testing.T) {
	base := 100 * time.Millisecond
	capDelay := 30 * time.Second

	if d := retryDelay(base, capDelay, 0); d != base {
		t.Fatalf("attempt 0: got %v, want %v", d, base)
	}
	if d := retryDelay(base, capDelay, 1); d != 150*time.Millisecond {
		t.Fatalf("attempt 1: got %v, want 150ms", d)
	}
	if d := retryDelay(base, capDelay, 2); d != 225*time.Millisecond {
		t.Fatalf("attempt 2: got %v, want 225ms", d)
	}
	// 100ms * 1.5^20 is far beyond the cap
	if d := retryDelay(base, capDelay, 20); d != capDelay {
		t.Fatalf("attempt 20: got %v, want cap %v", d, capDelay)
	}
}

func TestStatusString(t *testing.T) {
	if StatusPending.String() != "pending" ||
		StatusDelivered.String() != "delivered" ||
		StatusGivenUp.String() != "given-up" {
		t.Fatalf("unexpected status strings")
	}
}
