package flashctl

import (
	"log"

	"github.com/typicaltaco116/msp430-flash-experiment1/eventtimer"
	"github.com/typicaltaco116/msp430-flash-experiment1/hooking"
)

// DefaultBusyPollLimit bounds every status polling loop.
const DefaultBusyPollLimit = 1 << 20

// Builder can build flash controller drivers.
type Builder struct {
	bus           Bus
	timer         *eventtimer.Timer
	delayCounter  eventtimer.Counter
	heap          Heap
	relocator     Relocator
	geometry      Geometry
	busyPollLimit int
}

// MakeBuilder returns a new Builder
func MakeBuilder() Builder {
	return Builder{
		geometry:      F5529,
		busyPollLimit: DefaultBusyPollLimit,
	}
}

// WithBus sets the bus the driver talks to the device through.
func (b Builder) WithBus(bus Bus) Builder {
	b.bus = bus
	return b
}

// WithTimer sets the event timer used by the timed operations.
func (b Builder) WithTimer(timer *eventtimer.Timer) Builder {
	b.timer = timer
	return b
}

// WithDelayCounter sets the hardware counter that bounds timer-delayed
// partial erases.
func (b Builder) WithDelayCounter(counter eventtimer.Counter) Builder {
	b.delayCounter = counter
	return b
}

// WithHeap sets the RAM that holding buffers are taken from.
func (b Builder) WithHeap(heap Heap) Builder {
	b.heap = heap
	return b
}

// WithRelocator sets the service that copies routines into RAM.
func (b Builder) WithRelocator(relocator Relocator) Builder {
	b.relocator = relocator
	return b
}

// WithGeometry sets the flash layout.
func (b Builder) WithGeometry(geometry Geometry) Builder {
	b.geometry = geometry
	return b
}

// WithBusyPollLimit sets how many times a status bit is polled before the
// controller is considered hung.
func (b Builder) WithBusyPollLimit(limit int) Builder {
	b.busyPollLimit = limit
	return b
}

// Build creates a driver with the given name.
func (b Builder) Build(name string) *Driver {
	if b.bus == nil {
		log.Panic("flash driver requires a bus")
	}

	if b.timer == nil {
		log.Panic("flash driver requires an event timer")
	}

	if err := b.geometry.Validate(); err != nil {
		log.Panic(err)
	}

	if b.busyPollLimit <= 0 {
		log.Panic("busy poll limit must be positive")
	}

	return &Driver{
		HookableBase:  hooking.NewHookableBase(),
		name:          name,
		bus:           b.bus,
		timer:         b.timer,
		delayCounter:  b.delayCounter,
		heap:          b.heap,
		relocator:     b.relocator,
		geometry:      b.geometry,
		busyPollLimit: b.busyPollLimit,
	}
}
