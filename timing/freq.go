// Package timing provides the cycle-based time base that drives the
// simulated flash hardware.
package timing

import (
	"errors"
	"math/bits"
)

// FreqInHz defines frequency in the unit of Hertz (cycles per second).
type FreqInHz uint64

// Defines the unit of frequency
const (
	Hz  = FreqInHz(1)
	KHz = FreqInHz(1000 * Hz)
	MHz = FreqInHz(1000 * KHz)
)

// VTimeInCycle is the canonical time quantum. All timestamps are expressed in
// cycles of the clock that owns the engine.
type VTimeInCycle uint64

// VTimeInSec defines a duration in the simulated space in seconds.
type VTimeInSec float64

// ErrZeroFrequency indicates that a clock was configured with a zero
// frequency, which is not meaningful.
var ErrZeroFrequency = errors.New("timing: frequency must be greater than zero")

// Period returns the time between two consecutive ticks.
func (f FreqInHz) Period() VTimeInSec {
	if f == 0 {
		panic(ErrZeroFrequency)
	}

	return VTimeInSec(1.0 / float64(f))
}

// Seconds converts a number of cycles of this clock into seconds.
func (f FreqInHz) Seconds(cycles VTimeInCycle) VTimeInSec {
	return VTimeInSec(float64(cycles)) * f.Period()
}

// Cycles converts a duration into whole cycles of this clock, rounding down.
func (f FreqInHz) Cycles(t VTimeInSec) VTimeInCycle {
	if t <= 0 {
		return 0
	}

	return VTimeInCycle(float64(t) * float64(f))
}

// TicksOf returns how many whole ticks of a derived clock elapse during the
// given number of cycles of f. It is exact for any cycle count.
//
//	cycles of f   |----|----|----|----|----|----|
//	ticks of g    |---------|---------|---------|
func (f FreqInHz) TicksOf(g FreqInHz, cycles VTimeInCycle) uint64 {
	if f == 0 || g == 0 {
		panic(ErrZeroFrequency)
	}

	hi, lo := bits.Mul64(uint64(cycles), uint64(g))
	if hi >= uint64(f) {
		return ^uint64(0)
	}

	q, _ := bits.Div64(hi, lo, uint64(f))

	return q
}

// CyclesFor returns the smallest number of cycles of f after which at least
// n ticks of the derived clock g have elapsed.
func (f FreqInHz) CyclesFor(g FreqInHz, n uint64) VTimeInCycle {
	if f == 0 || g == 0 {
		panic(ErrZeroFrequency)
	}

	hi, lo := bits.Mul64(n, uint64(f))
	lo, carry := bits.Add64(lo, uint64(g)-1, 0)
	hi += carry

	if hi >= uint64(g) {
		return VTimeInCycle(^uint64(0))
	}

	q, _ := bits.Div64(hi, lo, uint64(g))

	return VTimeInCycle(q)
}
