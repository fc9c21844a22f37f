package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is the package-level time source for cycle selection and run stamps.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Clock returns the current time source.
func Clock() clockwork.Clock { return clock }

// Now returns the current UTC time from the package clock.
func Now() time.Time { return clock.Now().UTC() }
