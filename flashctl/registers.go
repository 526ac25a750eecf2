package flashctl

import (
	"fmt"
	"math"
)

// Addr is a byte address in the device address space.
type Addr uint32

func (a Addr) String() string {
	return fmt.Sprintf("0x%05X", uint32(a))
}

// Reg identifies a flash controller register.
type Reg uint16

// Flash controller registers.
const (
	FCTL1 Reg = 0x0140
	FCTL3 Reg = 0x0144
)

func (r Reg) String() string {
	switch r {
	case FCTL1:
		return "FCTL1"
	case FCTL3:
		return "FCTL3"
	}

	return fmt.Sprintf("REG(0x%04X)", uint16(r))
}

// Register passwords. Writes must carry FWPW in the high byte; reads return
// FRPW there.
const (
	FWPW     uint16 = 0xA500
	FRPW     uint16 = 0x9600
	PWMask   uint16 = 0xFF00
	BitsMask uint16 = 0x00FF
)

// FCTL1 bits select the operation.
const (
	ERASE  uint16 = 0x0002
	MERAS  uint16 = 0x0004
	WRT    uint16 = 0x0040
	BLKWRT uint16 = 0x0080
)

// FCTL3 bits report and control the controller state.
const (
	BUSY    uint16 = 0x0001
	KEYV    uint16 = 0x0002
	ACCVIFG uint16 = 0x0004
	WAIT    uint16 = 0x0008
	LOCK    uint16 = 0x0010
	EMEX    uint16 = 0x0020
)

// Geometry describes the layout of the main flash array.
type Geometry struct {
	Start        Addr
	Banks        int
	BankSegments int
	SegmentSize  int
	RowSize      int
}

// F5529 is the main flash of an MSP430F5529: four 32 KiB banks of 512-byte
// segments starting at 0x4400.
var F5529 = Geometry{
	Start:        0x4400,
	Banks:        4,
	BankSegments: 64,
	SegmentSize:  512,
	RowSize:      128,
}

// BankSize returns the size of a bank in bytes.
func (g Geometry) BankSize() int {
	return g.BankSegments * g.SegmentSize
}

// End returns the first address after the flash array.
func (g Geometry) End() Addr {
	return g.Start + Addr(g.Banks*g.BankSize())
}

// SegmentWords returns how many words a segment holds.
func (g Geometry) SegmentWords() int {
	return g.SegmentSize / 2
}

// RowsPerBlock returns how many row bursts a block write takes. A block is
// one segment.
func (g Geometry) RowsPerBlock() int {
	return g.SegmentSize / g.RowSize
}

// Contains tells whether a falls inside the flash array.
func (g Geometry) Contains(a Addr) bool {
	return a >= g.Start && a < g.End()
}

// Bank returns the base address of bank i.
func (g Geometry) Bank(i int) Addr {
	return g.Start + Addr(i*g.BankSize())
}

// Segment returns the base address of segment i of the bank at bank.
func (g Geometry) Segment(bank Addr, i int) Addr {
	return bank + Addr(i*g.SegmentSize)
}

// SegmentOf returns the base address of the segment containing a.
func (g Geometry) SegmentOf(a Addr) Addr {
	return g.Start + (a-g.Start)/Addr(g.SegmentSize)*Addr(g.SegmentSize)
}

// BankOf returns the base address of the bank containing a.
func (g Geometry) BankOf(a Addr) Addr {
	return g.Start + (a-g.Start)/Addr(g.BankSize())*Addr(g.BankSize())
}

// Validate checks that the geometry is usable.
func (g Geometry) Validate() error {
	switch {
	case g.Banks <= 0 || g.BankSegments <= 0:
		return fmt.Errorf("geometry needs at least one bank and segment")
	case g.RowSize <= 0 || g.RowSize%4 != 0:
		return fmt.Errorf("row size %d is not a multiple of a word pair", g.RowSize)
	case g.SegmentSize <= 0 || g.SegmentSize%2 != 0:
		return fmt.Errorf("segment size %d is not a positive number of words",
			g.SegmentSize)
	case g.SegmentSize%g.RowSize != 0:
		return fmt.Errorf("segment size %d is not a whole number of rows",
			g.SegmentSize)
	case g.Start%2 != 0:
		return fmt.Errorf("flash start %s is not word aligned", g.Start)
	}

	size := uint64(g.Banks) * uint64(g.BankSegments) * uint64(g.SegmentSize)
	if uint64(g.Start)+size > math.MaxUint32 {
		return fmt.Errorf("flash array at %s with %d bytes overflows the address space",
			g.Start, size)
	}

	return nil
}

func (g Geometry) checkWord(a Addr) error {
	if !g.Contains(a) || a%2 != 0 {
		return fmt.Errorf("word %s: %w", a, ErrOutOfRange)
	}

	return nil
}

func (g Geometry) checkSegment(a Addr) error {
	if !g.Contains(a) || g.SegmentOf(a) != a {
		return fmt.Errorf("segment %s: %w", a, ErrOutOfRange)
	}

	return nil
}

func (g Geometry) checkBank(a Addr) error {
	if !g.Contains(a) || g.BankOf(a) != a {
		return fmt.Errorf("bank %s: %w", a, ErrOutOfRange)
	}

	return nil
}
