// Package timegate decides whether the registration window has opened.
//
// The open instant is always an absolute, offset-qualified point in time. The
// gate never consults the machine's local timezone: "now" is a UTC instant and
// the comparison is between instants, not wall-clock strings.
package timegate

import (
	"sync/atomic"
	"time"
)

// IsOpen reports whether now is at or after openAt. The boundary is inclusive.
func IsOpen(now, openAt time.Time) bool {
	return !now.Before(openAt)
}

// Gate is a one-way latch over IsOpen: once it has observed an instant at or
// after the open instant it stays open for the life of the process, even if a
// later request carries an earlier clock reading.
type Gate struct {
	openAt time.Time
	opened atomic.Bool
}

func New(openAt time.Time) *Gate {
	return &Gate{openAt: openAt}
}

// OpenAt returns the configured open instant.
func (g *Gate) OpenAt() time.Time {
	return g.openAt
}

// Allow reports whether submissions are accepted at now.
func (g *Gate) Allow(now time.Time) bool {
	if g.opened.Load() {
		return true
	}
	if IsOpen(now, g.openAt) {
		g.opened.Store(true)
		return true
	}
	return false
}
