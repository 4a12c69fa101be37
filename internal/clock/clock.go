// Package clock abstracts wall time and delayed callbacks so that timing-driven
// components can be driven deterministically in tests.
package clock

import "time"

// Stopper cancels a pending callback. Stop reports whether the call prevented
// the callback from running.
type Stopper interface {
	Stop() bool
}

// Clock supplies the current time and schedules callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
}

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}
