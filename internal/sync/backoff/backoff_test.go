package backoff

import (
	"testing"
	"time"

	"github.com/kimhsiao/fieldsync/internal/clock"
)

func fixed(v float64) func() float64 {
	return func() float64 { return v }
}

func TestDelay(t *testing.T) {
	c := New(DefaultConfig(), clock.NewMock()).WithRand(fixed(0))

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 32 * time.Second},
		{8, 256 * time.Second},
		{9, 5 * time.Minute},
		{30, 5 * time.Minute},
	}

	for _, tt := range tests {
		if got := c.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelay_jitterIsAdditive(t *testing.T) {
	c := New(DefaultConfig(), clock.NewMock()).WithRand(fixed(0.5))

	if got, want := c.Delay(0), 1050*time.Millisecond; got != want {
		t.Errorf("Delay(0) = %v, want %v", got, want)
	}
	if got, want := c.Delay(20), 315*time.Second; got != want {
		t.Errorf("Delay(20) = %v, want %v", got, want)
	}
}

// TestDelay_monotonicAndBounded checks delays never shrink and never pass the jittered cap.
func TestDelay_monotonicAndBounded(t *testing.T) {
	cfg := DefaultConfig()
	upper := time.Duration(float64(cfg.MaxDelay) * (1 + cfg.JitterFactor))

	for _, r := range []float64{0, 0.3, 0.999999} {
		c := New(cfg, clock.NewMock()).WithRand(fixed(r))
		prev := time.Duration(0)
		for n := 0; n < 40; n++ {
			d := c.Delay(n)
			if d < prev {
				t.Errorf("rand=%v: Delay(%d) = %v < Delay(%d) = %v", r, n, d, n-1, prev)
			}
			if d > upper {
				t.Errorf("rand=%v: Delay(%d) = %v exceeds %v", r, n, d, upper)
			}
			prev = d
		}
	}

	// Real randomness stays within bounds too.
	c := New(cfg, clock.NewMock())
	for n := 0; n < 200; n++ {
		if d := c.Delay(n % 12); d > upper {
			t.Fatalf("Delay() = %v exceeds %v", d, upper)
		}
	}
}

func TestIsReadyForRetry(t *testing.T) {
	mock := clock.NewMock()
	c := New(DefaultConfig(), mock)
	now := mock.Now().UnixMilli()

	tests := []struct {
		name        string
		lastAttempt int64
		attempt     int
		want        bool
	}{
		{"first attempt", 0, 0, true},
		{"no prior attempt time", 0, 3, true},
		{"attempt zero with time", now, 0, true},
		{"just failed once", now, 1, false},
		{"one second after first", now - 1000, 1, true},
		{"half a second after first", now - 500, 1, false},
		{"after third needs 4s", now - 3999, 3, false},
		{"after third at 4s", now - 4000, 3, true},
		{"capped wait", now - 300000, 20, true},
		{"capped wait not reached", now - 299999, 20, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.IsReadyForRetry(tt.lastAttempt, tt.attempt); got != tt.want {
				t.Errorf("IsReadyForRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestReadiness_consistency checks readiness agrees with a zero time-until-retry.
func TestReadiness_consistency(t *testing.T) {
	mock := clock.NewMock()
	c := New(DefaultConfig(), mock)
	last := mock.Now().UnixMilli()

	for attempt := 0; attempt < 12; attempt++ {
		for _, elapsed := range []time.Duration{0, 999 * time.Millisecond, 2 * time.Second, time.Minute, 10 * time.Minute} {
			mock.SetNow(time.UnixMilli(last).Add(elapsed))
			ready := c.IsReadyForRetry(last, attempt)
			zero := c.TimeUntilRetry(last, attempt) == 0
			if ready != zero {
				t.Errorf("attempt %d elapsed %v: ready=%v but TimeUntilRetry zero=%v", attempt, elapsed, ready, zero)
			}
		}
	}
}

func TestTimeUntilRetry(t *testing.T) {
	mock := clock.NewMock()
	c := New(DefaultConfig(), mock)
	last := mock.Now().UnixMilli()

	mock.Advance(1500 * time.Millisecond)
	if got, want := c.TimeUntilRetry(last, 2), 500*time.Millisecond; got != want {
		t.Errorf("TimeUntilRetry() = %v, want %v", got, want)
	}

	mock.Advance(time.Hour)
	if got := c.TimeUntilRetry(last, 2); got != 0 {
		t.Errorf("TimeUntilRetry() = %v, want 0", got)
	}
}

func TestFormatDelay(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0ms"},
		{250 * time.Millisecond, "250ms"},
		{999 * time.Millisecond, "999ms"},
		{1000 * time.Millisecond, "1 second"},
		{1499 * time.Millisecond, "1 second"},
		{2500 * time.Millisecond, "3 seconds"},
		{59 * time.Second, "59 seconds"},
		{60 * time.Second, "1 minute"},
		{150 * time.Second, "3 minutes"},
		{5 * time.Minute, "5 minutes"},
	}

	for _, tt := range tests {
		if got := FormatDelay(tt.in); got != tt.want {
			t.Errorf("FormatDelay(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
