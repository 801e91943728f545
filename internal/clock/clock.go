// Package clock provides an abstract layer over the standard time package
// so that backoff, queue and conflict timing can be tested deterministically.
package clock

import (
	"sync"
	"time"
)

// Clock is an interface to the standard library time.
type Clock interface {
	Now() time.Time
}

type clock struct{}

func (c *clock) Now() time.Time {
	return time.Now()
}

// New returns an instance of a real clock.
func New() Clock {
	return &clock{}
}

// Mock is a settable clock used in tests.
type Mock struct {
	mu          sync.RWMutex
	currentTime time.Time
}

// NewMock returns a mock clock fixed at a known instant.
func NewMock() *Mock {
	return &Mock{
		currentTime: time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC),
	}
}

// SetNow sets the current time for the mock clock.
func (c *Mock) SetNow(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = t
}

// Advance moves the mock clock forward by d.
func (c *Mock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = c.currentTime.Add(d)
}

// Now returns the current time.
func (c *Mock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentTime
}

// Millis returns the current time of c as milliseconds since the Unix epoch.
func Millis(c Clock) int64 {
	return c.Now().UnixMilli()
}
