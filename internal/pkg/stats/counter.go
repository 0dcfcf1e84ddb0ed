package stats

import "sync/atomic"

// counter is a tiny atomic tally. The stage gauges decrement it too, so
// it is not strictly monotonic.
type counter struct {
	v atomic.Uint64
}

func (c *counter) incr(step uint64) {
	c.v.Add(step)
}

func (c *counter) decr(step uint64) {
	c.v.Add(^(step - 1))
}

func (c *counter) get() uint64 {
	return c.v.Load()
}

func (c *counter) reset() {
	c.v.Store(0)
}
