package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is the package time source for "today" defaults. Tests freeze it via
// SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Today returns the current calendar day in UTC.
func Today() time.Time {
	return CalendarDay(clock.Now().UTC())
}

// Now returns the current instant in UTC.
func Now() time.Time {
	return clock.Now().UTC()
}
