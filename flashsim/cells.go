package flashsim

import (
	"hash/fnv"
	"math"

	"github.com/typicaltaco116/msp430-flash-experiment1/flashctl"
	"github.com/typicaltaco116/msp430-flash-experiment1/timing"
)

// FlashTiming holds the controller and cell timing, in CPU cycles.
type FlashTiming struct {
	WordWrite    timing.VTimeInCycle
	SegmentErase timing.VTimeInCycle
	MassErase    timing.VTimeInCycle
	BlockPair    timing.VTimeInCycle
	BlockRowEnd  timing.VTimeInCycle

	// ProgramCell and EraseCell are the slowest time a fresh cell needs to
	// flip. Each cell needs between half and all of it.
	ProgramCell float64
	EraseCell   float64

	// WearSlope is the relative slowdown per erase cycle of the segment.
	WearSlope float64

	// StallJitter bounds the extra wait states when the CPU runs from flash
	// and has to wait for the controller.
	StallJitter timing.VTimeInCycle
}

// DefaultTiming is close to an MSP430F5529 running at 1.024 MHz.
var DefaultTiming = FlashTiming{
	WordWrite:    75,
	SegmentErase: 24000,
	MassErase:    32000,
	BlockPair:    16,
	BlockRowEnd:  8,
	ProgramCell:  10,
	EraseCell:    24,
	WearSlope:    1e-6,
	StallJitter:  4,
}

type cellKind byte

const (
	programCell cellKind = 'p'
	eraseCell   cellKind = 'e'
)

// cellModel decides how long each bit needs to flip.
type cellModel struct {
	seed   uint64
	timing FlashTiming
}

// spread returns a stable value in [0.5, 1.0] for a bit.
func (m cellModel) spread(kind cellKind, a flashctl.Addr, bit int) float64 {
	h := fnv.New64a()

	var buf [14]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(m.seed >> (8 * i))
	}

	buf[8] = byte(kind)
	buf[9] = byte(a)
	buf[10] = byte(a >> 8)
	buf[11] = byte(a >> 16)
	buf[12] = byte(a >> 24)
	buf[13] = byte(bit)
	_, _ = h.Write(buf[:])

	return 0.5 + 0.5*float64(h.Sum64()>>11)/float64(1<<53)
}

// cellTime is how many cycles the bit needs after wear erase cycles.
func (m cellModel) cellTime(
	kind cellKind,
	a flashctl.Addr,
	bit int,
	wear uint64,
) float64 {
	base := m.timing.ProgramCell
	if kind == eraseCell {
		base = m.timing.EraseCell
	}

	return base * m.spread(kind, a, bit) * (1 + m.timing.WearSlope*float64(wear))
}

// program clears the bits of old that are 0 in value and whose cells are
// fast enough for elapsed.
func (m cellModel) program(
	old, value uint16,
	a flashctl.Addr,
	wear uint64,
	elapsed timing.VTimeInCycle,
) uint16 {
	result := old
	toClear := old &^ value

	for bit := 0; bit < 16; bit++ {
		mask := uint16(1) << bit
		if toClear&mask == 0 {
			continue
		}

		if float64(elapsed) >= m.cellTime(programCell, a, bit, wear) {
			result &^= mask
		}
	}

	return result
}

// erase sets the bits of old whose cells are fast enough for elapsed.
func (m cellModel) erase(
	old uint16,
	a flashctl.Addr,
	wear uint64,
	elapsed timing.VTimeInCycle,
) uint16 {
	if old == math.MaxUint16 {
		return old
	}

	result := old

	for bit := 0; bit < 16; bit++ {
		mask := uint16(1) << bit
		if result&mask != 0 {
			continue
		}

		if float64(elapsed) >= m.cellTime(eraseCell, a, bit, wear) {
			result |= mask
		}
	}

	return result
}
