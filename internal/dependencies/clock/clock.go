package clock

import "time"

// Clock provides time operations that can be mocked for testing
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system clock
type RealClock struct{}

// New creates a new RealClock
func New() *RealClock {
	return &RealClock{}
}

// Now returns the current time in UTC. Room timestamps are stored and sent
// to clients in UTC whatever the server's zone.
func (c *RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Since returns the time elapsed since t according to c
func Since(c Clock, t time.Time) time.Duration {
	return c.Now().Sub(t)
}
