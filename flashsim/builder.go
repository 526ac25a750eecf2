package flashsim

import (
	"log"
	"math/rand"

	"github.com/typicaltaco116/msp430-flash-experiment1/eventtimer"
	"github.com/typicaltaco116/msp430-flash-experiment1/flashctl"
	"github.com/typicaltaco116/msp430-flash-experiment1/timing"
)

// Builder can build simulated devices.
type Builder struct {
	engine      *timing.SerialEngine
	freq        timing.FreqInHz
	geometry    flashctl.Geometry
	costs       Costs
	timing      FlashTiming
	seed        int64
	noiseRate   float64
	ramSize     int
	chipID      uint64
	initialWear uint64
}

// MakeBuilder returns a Builder for an MSP430F5529 at 1.024 MHz with ideal,
// noise-free reads.
func MakeBuilder() Builder {
	return Builder{
		freq:     1024 * timing.KHz,
		geometry: flashctl.F5529,
		costs:    DefaultCosts,
		timing:   DefaultTiming,
		seed:     1,
		ramSize:  8 * 1024,
		chipID:   0x0F4D_2B19_5529_0001,
	}
}

// WithEngine sets the engine that keeps time. A new engine is created when
// none is given.
func (b Builder) WithEngine(engine *timing.SerialEngine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the CPU clock frequency.
func (b Builder) WithFreq(freq timing.FreqInHz) Builder {
	b.freq = freq
	return b
}

// WithGeometry sets the flash layout.
func (b Builder) WithGeometry(geometry flashctl.Geometry) Builder {
	b.geometry = geometry
	return b
}

// WithCosts sets the cycle cost of bus accesses.
func (b Builder) WithCosts(costs Costs) Builder {
	b.costs = costs
	return b
}

// WithTiming sets the controller and cell timing.
func (b Builder) WithTiming(t FlashTiming) Builder {
	b.timing = t
	return b
}

// WithSeed sets the seed of the cell model, the read noise and the wait
// state jitter.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// WithReadNoise sets the probability that a flash read returns one flipped
// bit.
func (b Builder) WithReadNoise(rate float64) Builder {
	b.noiseRate = rate
	return b
}

// WithRAMSize sets the RAM size in bytes.
func (b Builder) WithRAMSize(size int) Builder {
	b.ramSize = size
	return b
}

// WithChipID sets the chip ID in the device descriptor.
func (b Builder) WithChipID(id uint64) Builder {
	b.chipID = id
	return b
}

// WithInitialWear starts every segment with the given number of erase
// cycles behind it.
func (b Builder) WithInitialWear(cycles uint64) Builder {
	b.initialWear = cycles
	return b
}

// Build creates a device with the given name.
func (b Builder) Build(name string) *Device {
	if b.freq == 0 {
		log.Panic(timing.ErrZeroFrequency)
	}

	if err := b.geometry.Validate(); err != nil {
		log.Panic(err)
	}

	if b.noiseRate < 0 || b.noiseRate > 1 {
		log.Panicf("read noise rate %f is not a probability", b.noiseRate)
	}

	engine := b.engine
	if engine == nil {
		engine = timing.NewSerialEngine()
	}

	d := &Device{
		name:        name,
		engine:      engine,
		freq:        b.freq,
		geometry:    b.geometry,
		costs:       b.costs,
		timing:      b.timing,
		cells:       cellModel{seed: uint64(b.seed), timing: b.timing},
		flash:       make(map[flashctl.Addr]uint16),
		other:       make(map[flashctl.Addr]uint16),
		wear:        make(map[flashctl.Addr]uint64),
		initialWear: b.initialWear,
		fctl3:       flashctl.LOCK,
		jitter:      rand.New(rand.NewSource(b.seed)),
	}

	if b.noiseRate > 0 {
		d.noise = rand.New(rand.NewSource(b.seed + 1))
		d.noiseRate = b.noiseRate
	}

	for i := 0; i < 4; i++ {
		d.other[ChipIDAddr+flashctl.Addr(2*i)] = uint16(b.chipID >> (16 * i))
	}

	d.ram = newRAM(d, RAMStart, b.ramSize)
	d.ta0 = &Counter{device: d, name: name + ".TA0"}
	d.ta1 = &Counter{device: d, name: name + ".TA1"}

	return d
}

// DriverBuilder returns a flash driver builder wired to the device: the
// device as bus, TA0 behind the event timer, TA1 as delay counter and the
// RAM as heap and relocator.
func (d *Device) DriverBuilder() flashctl.Builder {
	return flashctl.MakeBuilder().
		WithBus(d).
		WithTimer(eventtimer.New(d.ta0)).
		WithDelayCounter(d.ta1).
		WithHeap(d.ram).
		WithRelocator(d.ram).
		WithGeometry(d.geometry)
}
