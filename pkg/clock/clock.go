// Package clock provides the time source used for session bookkeeping.
//
// Production code uses Real(). Tests use NewFakeClock() so timestamps such as
// the last authentication check and rate limiter refills are deterministic.
package clock

import "time"

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Func adapts an ordinary function to a Clock.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time { return f() }

// Real returns the wall clock.
func Real() Clock {
	return Func(time.Now)
}
