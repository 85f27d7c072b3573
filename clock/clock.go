// Package clock provides the wall-clock source consumed by the entry-table
// and FAT layers for timestamps and most-recent-wins versioning.
package clock

import "time"

// Timestamp is the opaque 64-bit wall-clock value stored on disk. It is
// monotonic enough for "greatest wins" comparisons but carries no declared
// epoch or unit beyond "later timestamps compare greater".
type Timestamp uint64

// Clock returns the current Timestamp. Implementations must be safe to call
// from a single goroutine per volume (the core itself is single-threaded,
// see the volume package doc comment).
type Clock interface {
	Now() Timestamp
}

// System is the default Clock, backed by time.Now().
type System struct{}

func (System) Now() Timestamp {
	return Timestamp(time.Now().UnixNano())
}

// Fixed is a Clock that always returns the same Timestamp, useful for
// deterministic tests.
type Fixed Timestamp

func (f Fixed) Now() Timestamp { return Timestamp(f) }
