// Package atomic_clock is a wall clock timestamp safe for concurrent set and read.
// Zero value means "never".
package atomic_clock

import (
	"sync/atomic"
	"time"
)

type Clock struct{ v int64 }

var source = func() int64 { return time.Now().UnixNano() }

func New(v int64) *Clock { return &Clock{v: v} }
func Now() *Clock        { return New(source()) }

func (c *Clock) get() int64 { return atomic.LoadInt64(&c.v) }

func (c *Clock) IsZero() bool { return c.get() == 0 }

func (c *Clock) Set(nano int64)      { atomic.StoreInt64(&c.v, nano) }
func (c *Clock) SetNow()             { c.Set(source()) }
func (c *Clock) SetNowIfZero()       { atomic.CompareAndSwapInt64(&c.v, 0, source()) }
func (c *Clock) SetTime(t time.Time) { c.Set(t.UnixNano()) }

func (c *Clock) Time() time.Time {
	if v := c.get(); v != 0 {
		return time.Unix(0, v)
	}
	return time.Time{}
}

func (c *Clock) Unix() int64     { return c.get() / int64(time.Second) }
func (c *Clock) UnixNano() int64 { return c.get() }

// Age is time since last set, ok=false if never set.
func (c *Clock) Age() (time.Duration, bool) {
	v := c.get()
	if v == 0 {
		return 0, false
	}
	return time.Duration(source() - v), true
}

func Since(begin *Clock) time.Duration { return time.Duration(source() - begin.get()) }
