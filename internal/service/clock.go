package service

import "time"

// SystemClock reads the real wall clock in UTC.
type SystemClock struct{}

func (SystemClock) UtcNow() time.Time {
	return time.Now().UTC()
}
