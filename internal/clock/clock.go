package clock

import "time"

// ISO8601Milli matches the millisecond UTC timestamps loans are stamped with.
const ISO8601Milli = "2006-01-02T15:04:05.000Z07:00"

// Clock allows injecting time into the registrar.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func NewSystem() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now().UTC() }

type fixedClock struct{ now time.Time }

// NewFixed always returns t (tests).
func NewFixed(t time.Time) Clock { return fixedClock{now: t.UTC()} }

func (f fixedClock) Now() time.Time { return f.now }

// Timestamp renders c.Now() as an ISO-8601 UTC string.
func Timestamp(c Clock) string { return c.Now().UTC().Format(ISO8601Milli) }
