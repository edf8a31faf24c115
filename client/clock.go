package client

import "time"

// Clock is the monotonic time source playback scheduling reasons against.
// Injected so timing logic is testable without real timers.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
