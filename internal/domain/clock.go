package domain

import (
	"sync/atomic"
	"time"
)

// Clock supplies wall-clock time. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Sequencer hands out the strictly increasing Seq values that order
// pending actions.
//
// Values track wall-clock nanoseconds so they remain increasing across
// restarts, but never repeat or go backwards when the wall clock does:
// Next returns max(now, last+1).
//
// Thread-safety: Sequencer is safe for concurrent use.
type Sequencer struct {
	last atomic.Int64
}

// NewSequencer creates a sequencer whose first value is greater than start.
// Pass the highest Seq already persisted.
func NewSequencer(start int64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

// Next returns the next sequence number for an action created at now.
func (s *Sequencer) Next(now time.Time) int64 {
	want := now.UnixNano()
	for {
		last := s.last.Load()
		next := want
		if next <= last {
			next = last + 1
		}
		if s.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Observe raises the floor so later values exceed seq.
func (s *Sequencer) Observe(seq int64) {
	for {
		last := s.last.Load()
		if seq <= last || s.last.CompareAndSwap(last, seq) {
			return
		}
	}
}

// Current returns the last value handed out or observed.
func (s *Sequencer) Current() int64 {
	return s.last.Load()
}

// TimestampLayout is the persisted form of entity timestamps: UTC, fixed
// width, nanosecond precision, so lexical order equals temporal order.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTimestamp renders t in TimestampLayout. The zero time renders as "".
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a value written by FormatTimestamp. "" yields the
// zero time.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(TimestampLayout, s)
}
