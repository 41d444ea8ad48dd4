package clock

import (
	"sync/atomic"
	"time"
)

// Clock is the engine's sole time authority. Now feeds cache-window and
// deprecation decisions; Sequence is a monotonic step counter that groups
// operations into the same pricing observation window.
type Clock interface {
	Now() time.Time
	Sequence() uint64
}

// Stepper advances the sequence counter. The gateway steps the clock once
// per public operation; nothing else may.
type Stepper interface {
	Step() uint64
}

// SystemClock reads wall-clock time and keeps a process-wide step counter.
type SystemClock struct {
	seq atomic.Uint64
}

func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (c *SystemClock) Now() time.Time {
	return time.Now().UTC()
}

func (c *SystemClock) Sequence() uint64 {
	return c.seq.Load()
}

func (c *SystemClock) Step() uint64 {
	return c.seq.Add(1)
}

// ManualClock is a test clock with settable time and sequence.
type ManualClock struct {
	now time.Time
	seq uint64
}

func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now.UTC()}
}

func (c *ManualClock) Now() time.Time { return c.now }

func (c *ManualClock) Sequence() uint64 { return c.seq }

func (c *ManualClock) Step() uint64 {
	c.seq++
	return c.seq
}

func (c *ManualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func (c *ManualClock) SetNow(now time.Time) { c.now = now.UTC() }
