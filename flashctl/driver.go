// Package flashctl drives an MSP430-style flash controller through its
// unlock, erase, write and emergency exit states.
//
// Every operation leaves the controller locked, on every path. Routines whose
// timing must not be disturbed by flash wait states are relocated into RAM
// before they are invoked.
package flashctl

import (
	"sync"

	"github.com/rs/xid"

	"github.com/typicaltaco116/msp430-flash-experiment1/eventtimer"
	"github.com/typicaltaco116/msp430-flash-experiment1/hooking"
	"github.com/typicaltaco116/msp430-flash-experiment1/tracing"
)

// Driver owns the flash controller. Only one operation is in flight at a
// time.
type Driver struct {
	*hooking.HookableBase

	name string
	mu   sync.Mutex

	bus          Bus
	timer        *eventtimer.Timer
	delayCounter eventtimer.Counter
	heap         Heap
	relocator    Relocator
	geometry     Geometry

	busyPollLimit int
}

// Name returns the name of the driver.
func (d *Driver) Name() string {
	return d.name
}

// Geometry returns the flash layout the driver works on.
func (d *Driver) Geometry() Geometry {
	return d.geometry
}

// Timer returns the event timer used by timed operations.
func (d *Driver) Timer() *eventtimer.Timer {
	return d.timer
}

// Read reads one word.
func (d *Driver) Read(a Addr) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.bus.Read(a)
}

// ReadSegment copies a whole segment out of flash.
func (d *Driver) ReadSegment(seg Addr) ([]uint16, error) {
	if err := d.geometry.checkSegment(seg); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	words := make([]uint16, d.geometry.SegmentWords())
	for i := range words {
		words[i] = d.bus.Read(seg + Addr(2*i))
	}

	return words, nil
}

// Locked tells whether the controller currently reads as locked.
func (d *Driver) Locked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.bus.ReadReg(FCTL3)&LOCK != 0
}

func (d *Driver) waitNotBusy() error {
	for i := 0; i < d.busyPollLimit; i++ {
		if d.bus.ReadReg(FCTL3)&BUSY == 0 {
			return nil
		}
	}

	return ErrBusyTimeout
}

func (d *Driver) waitReady() error {
	for i := 0; i < d.busyPollLimit; i++ {
		if d.bus.ReadReg(FCTL3)&WAIT != 0 {
			return nil
		}
	}

	return ErrBusyTimeout
}

func (d *Driver) nops(n int) {
	for i := 0; i < n; i++ {
		d.bus.Nop()
	}
}

// delayTicks spins until the delay counter, running from the fast source,
// reaches ticks.
func (d *Driver) delayTicks(ticks uint16) error {
	if d.delayCounter == nil {
		panic("flash driver has no delay counter")
	}

	d.delayCounter.Clear()
	d.delayCounter.Start(eventtimer.Fast)
	defer d.delayCounter.Halt()

	for i := 0; d.delayCounter.Count() < ticks; i++ {
		if i >= d.busyPollLimit {
			return ErrBusyTimeout
		}
	}

	return nil
}

func (d *Driver) startTask(kind, what string) string {
	if d.NumHooks() == 0 {
		return ""
	}

	id := xid.New().String()
	tracing.StartTask(id, "", d, kind, what, nil)

	return id
}

func (d *Driver) endTask(id string) {
	if id == "" {
		return
	}

	tracing.EndTask(id, d)
}
