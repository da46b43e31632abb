// Package clock abstracts time for code that waits or stamps records, so
// tests can run retry schedules without sleeping.
package clock

import "time"

// Clock provides the current time and timer channels.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
