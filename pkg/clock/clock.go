// Package clock abstracts time lookups so components that make
// time-based decisions (circuit cooldowns, token refills, config
// refresh) can be driven by a fake clock in tests.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

var _ Clock = Real{}
