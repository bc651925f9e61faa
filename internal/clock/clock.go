// Package clock provides the wall clock used to stamp WAL records, archive
// entries and snapshots.
package clock

import "time"

// Clock returns the current time as epoch seconds.
type Clock interface {
	Now() int64
}

// System reads the host clock.
type System struct{}

// Now returns time.Now in epoch seconds.
func (System) Now() int64 {
	return time.Now().Unix()
}

// Func adapts a plain function to Clock.
type Func func() int64

// Now calls f.
func (f Func) Now() int64 {
	return f()
}
