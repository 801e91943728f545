// Package backoff computes exponential retry delays with jitter.
package backoff

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/kimhsiao/fieldsync/internal/clock"
	"github.com/kimhsiao/fieldsync/internal/config"
)

// Config holds the delay parameters.
type Config struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

// DefaultConfig returns 1s base, 5m cap, doubling, 10% jitter.
func DefaultConfig() Config {
	return Config{
		BaseDelay:    time.Second,
		MaxDelay:     5 * time.Minute,
		Multiplier:   2,
		JitterFactor: 0.1,
	}
}

// FromConfig maps loaded settings onto a Config.
func FromConfig(b config.Backoff) Config {
	return Config{
		BaseDelay:    b.BaseDelay,
		MaxDelay:     b.MaxDelay,
		Multiplier:   b.Multiplier,
		JitterFactor: b.Jitter,
	}
}

// Calculator evaluates delays and retry readiness against a clock.
type Calculator struct {
	cfg   Config
	clock clock.Clock
	rand  func() float64
}

// New returns a Calculator using a process-wide random source for jitter.
func New(cfg Config, c clock.Clock) *Calculator {
	return &Calculator{cfg: cfg, clock: c, rand: rand.Float64}
}

// WithRand replaces the jitter source; fn must return values in [0, 1).
func (c *Calculator) WithRand(fn func() float64) *Calculator {
	c.rand = fn
	return c
}

// Config returns the calculator's parameters.
func (c *Calculator) Config() Config {
	return c.cfg
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// capped returns min(max, base * multiplier^attempt) in milliseconds.
func (c *Calculator) capped(attempt int) float64 {
	if attempt < 0 {
		attempt = 0
	}
	return math.Min(ms(c.cfg.MaxDelay), ms(c.cfg.BaseDelay)*math.Pow(c.cfg.Multiplier, float64(attempt)))
}

// Delay returns the jittered delay before retry number attempt. Jitter only
// ever lengthens the delay.
func (c *Calculator) Delay(attempt int) time.Duration {
	jittered := c.capped(attempt) * (1 + c.cfg.JitterFactor*c.rand())
	return time.Duration(math.Floor(jittered)) * time.Millisecond
}

// threshold is the deterministic wait after an attempt, used for readiness.
func (c *Calculator) threshold(attempt int) time.Duration {
	return time.Duration(c.capped(attempt-1)) * time.Millisecond
}

// IsReadyForRetry reports whether enough time has passed since lastAttemptMs.
// A zero lastAttemptMs or attempt means no prior attempt.
func (c *Calculator) IsReadyForRetry(lastAttemptMs int64, attempt int) bool {
	return c.TimeUntilRetry(lastAttemptMs, attempt) == 0
}

// TimeUntilRetry returns the non-negative time left before a retry is allowed.
func (c *Calculator) TimeUntilRetry(lastAttemptMs int64, attempt int) time.Duration {
	if attempt == 0 || lastAttemptMs == 0 {
		return 0
	}
	readyAt := time.UnixMilli(lastAttemptMs).Add(c.threshold(attempt))
	remaining := readyAt.Sub(c.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FormatDelay renders a delay for people: "250ms", "3 seconds", "1 minute".
func FormatDelay(d time.Duration) string {
	millis := d.Milliseconds()
	switch {
	case millis < 1000:
		return fmt.Sprintf("%dms", millis)
	case millis < 60000:
		return plural(int64(math.Round(float64(millis)/1000)), "second")
	default:
		return plural(int64(math.Round(float64(millis)/60000)), "minute")
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
