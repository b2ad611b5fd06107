package core

import (
	"sync/atomic"
	"time"
)

// Clock supplies the trusted current time in unix seconds. Bet windows are
// compared against it; nothing ever waits on it.
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	now atomic.Int64
}

func NewManualClock(start int64) *ManualClock {
	c := &ManualClock{}
	c.now.Store(start)
	return c
}

func (c *ManualClock) Now() int64 { return c.now.Load() }

func (c *ManualClock) Set(t int64) { c.now.Store(t) }

func (c *ManualClock) Advance(d int64) { c.now.Add(d) }
