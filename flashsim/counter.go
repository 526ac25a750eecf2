package flashsim

import (
	"github.com/typicaltaco116/msp430-flash-experiment1/eventtimer"
	"github.com/typicaltaco116/msp430-flash-experiment1/timing"
)

// Counter is a 16-bit timer counting in continuous mode. Accessing it takes
// CPU time like any register access.
type Counter struct {
	device  *Device
	name    string
	running bool
	src     eventtimer.ClockSource
	startAt timing.VTimeInCycle
	base    uint64
}

// Name returns the name of the counter.
func (c *Counter) Name() string {
	return c.name
}

// Clear resets the count.
func (c *Counter) Clear() {
	d := c.device
	d.mu.Lock()
	defer d.mu.Unlock()

	d.access(d.costs.WriteReg)

	c.base = 0
	c.startAt = d.now()
}

// Start lets the counter run from src.
func (c *Counter) Start(src eventtimer.ClockSource) {
	d := c.device
	d.mu.Lock()
	defer d.mu.Unlock()

	d.access(d.costs.WriteReg)

	if c.running {
		c.base = c.ticks()
	}

	c.src = src
	c.running = true
	c.startAt = d.now()
}

// Halt stops the counter.
func (c *Counter) Halt() {
	d := c.device
	d.mu.Lock()
	defer d.mu.Unlock()

	d.access(d.costs.WriteReg)

	c.base = c.ticks()
	c.running = false
}

// Count samples the counter.
func (c *Counter) Count() uint16 {
	d := c.device
	d.mu.Lock()
	defer d.mu.Unlock()

	d.access(d.costs.ReadReg)

	return uint16(c.ticks())
}

func (c *Counter) ticks() uint64 {
	if !c.running {
		return c.base
	}

	elapsed := c.device.now() - c.startAt

	return c.base + c.device.freq.TicksOf(timing.FreqInHz(c.src.Hz()), elapsed)
}

var _ eventtimer.Counter = (*Counter)(nil)
