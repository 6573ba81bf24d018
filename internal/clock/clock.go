// Package clock abstracts time for services that sweep on schedules,
// so tests can drive them with a fake.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func NewSystemClock() *SystemClock { return &SystemClock{} }

func (SystemClock) Now() time.Time { return time.Now().UTC() }
