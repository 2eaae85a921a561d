package retrieve

import (
	"testing"
	"time"
)

func TestNextPollDelayGrowth(t *testing.T) {
	max := 120 * time.Second

	cases := []struct {
		current time.Duration
		want    time.Duration
	}{
		{time.Second, 1500 * time.Millisecond},
		{1500 * time.Millisecond, 2250 * time.Millisecond},
		{80 * time.Second, 120 * time.Second},
		{100 * time.Second, 120 * time.Second},
		{120 * time.Second, 120 * time.Second},
	}
	for _, tc := range cases {
		if got := nextPollDelay(tc.current, max); got != tc.want {
			t.Errorf("nextPollDelay(%v) = %v, want %v", tc.current, got, tc.want)
		}
	}
}

func TestNextPollDelayMonotonic(t *testing.T) {
	max := 10 * time.Second
	d := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		next := nextPollDelay(d, max)
		if next < d {
			t.Fatalf("delay shrank from %v to %v", d, next)
		}
		if next > max {
			t.Fatalf("delay %v exceeds the cap %v", next, max)
		}
		d = next
	}
	if d != max {
		t.Errorf("delay never reached the cap, stuck at %v", d)
	}
}
