// Package clock abstracts "now" so the billing engine never reads the
// host's local time (spec §5.2: every timestamp is anchored to a single
// configured timezone) and so tests can freeze time deterministically.
package clock

import "time"

// Clock returns the current time in the engine's configured timezone.
type Clock interface {
	Now() time.Time
}

// Real anchors Now() to a fixed *time.Location, defaulting to
// America/Cancun per the source system.
type Real struct {
	Location *time.Location
}

// NewReal loads the named timezone and returns a Real clock anchored to
// it. An empty name defaults to "America/Cancun".
func NewReal(tzName string) (*Real, error) {
	if tzName == "" {
		tzName = "America/Cancun"
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, err
	}
	return &Real{Location: loc}, nil
}

// Now returns the current time in the configured location.
func (r *Real) Now() time.Time {
	return time.Now().In(r.Location)
}

// Fixed is a deterministic clock for tests.
type Fixed struct {
	At time.Time
}

// NewFixed returns a Clock that always returns at.
func NewFixed(at time.Time) *Fixed { return &Fixed{At: at} }

// Now returns the frozen time.
func (f *Fixed) Now() time.Time { return f.At }
