package wear

import (
	"fmt"
	"log"
	"math/bits"

	"github.com/typicaltaco116/msp430-flash-experiment1/flashctl"
)

// Flash is the part of the flash driver the engine works with.
type Flash interface {
	Geometry() flashctl.Geometry
	Read(a flashctl.Addr) uint16

	EraseSegment(seg flashctl.Addr) error
	EraseSegmentTimed(seg flashctl.Addr) (uint16, error)
	EraseBank(bank flashctl.Addr) error
	WriteWord(value uint16, target flashctl.Addr) error
	WriteWordTimed(value uint16, target flashctl.Addr) (uint16, error)
	SafeWriteWord(value uint16, target, seg flashctl.Addr) error

	LoadBlockSet() (flashctl.Relocatable[flashctl.BlockArgs], error)
	LoadPartialWrite(nops int) (flashctl.Relocatable[flashctl.WordArgs], error)
	LoadPartialErase() (flashctl.Relocatable[flashctl.EraseArgs], error)
}

// The candidate delays, longest first.
var (
	// PartialWriteNops are the NOP counts tried by the partial write search.
	PartialWriteNops = []int{12, 10, 8, 6, 4, 0}

	// PartialEraseDelays are the fast timer ticks tried by the partial erase
	// search.
	PartialEraseDelays = []uint16{12, 10, 8, 6, 4, 2}
)

// Engine runs stress cycles and statistics passes on a flash.
type Engine struct {
	name        string
	flash       Flash
	geometry    flashctl.Geometry
	writeNops   []int
	eraseDelays []uint16
	readCount   int
}

// Builder can build wear engines.
type Builder struct {
	flash       Flash
	writeNops   []int
	eraseDelays []uint16
	readCount   int
}

// MakeBuilder returns a builder with the standard candidate delays.
func MakeBuilder() Builder {
	return Builder{
		writeNops:   PartialWriteNops,
		eraseDelays: PartialEraseDelays,
		readCount:   ReadCount,
	}
}

// WithFlash sets the flash to work on.
func (b Builder) WithFlash(flash Flash) Builder {
	b.flash = flash
	return b
}

// WithPartialWriteNops sets the NOP counts of the partial write search. They
// must be in descending order.
func (b Builder) WithPartialWriteNops(nops []int) Builder {
	b.writeNops = nops
	return b
}

// WithPartialEraseDelays sets the delays of the partial erase search. They
// must be in descending order.
func (b Builder) WithPartialEraseDelays(delays []uint16) Builder {
	b.eraseDelays = delays
	return b
}

// WithReadCount sets how many times every word is re-read by the bit check.
func (b Builder) WithReadCount(n int) Builder {
	b.readCount = n
	return b
}

// Build creates an engine.
func (b Builder) Build(name string) *Engine {
	if b.flash == nil {
		log.Panic("wear engine requires a flash")
	}

	for i := 1; i < len(b.writeNops); i++ {
		if b.writeNops[i] >= b.writeNops[i-1] {
			log.Panicf("partial write NOPs %v are not descending", b.writeNops)
		}
	}

	for i := 1; i < len(b.eraseDelays); i++ {
		if b.eraseDelays[i] >= b.eraseDelays[i-1] {
			log.Panicf("partial erase delays %v are not descending", b.eraseDelays)
		}
	}

	return &Engine{
		name:        name,
		flash:       b.flash,
		geometry:    b.flash.Geometry(),
		writeNops:   append([]int(nil), b.writeNops...),
		eraseDelays: append([]uint16(nil), b.eraseDelays...),
		readCount:   b.readCount,
	}
}

// Name returns the name of the engine.
func (e *Engine) Name() string {
	return e.name
}

// StressSegment erases seg and fills it with val, iterations times. Filling
// with 0x0000 stresses every bit. The block write routine is relocated once
// for all iterations; if that fails, nothing is erased.
func (e *Engine) StressSegment(seg flashctl.Addr, val uint16, iterations uint32) error {
	blockSet, err := e.flash.LoadBlockSet()
	if err != nil {
		return fmt.Errorf("stress segment %s: %w", seg, err)
	}
	defer blockSet.Release()

	for i := uint32(0); i < iterations; i++ {
		if err := e.flash.EraseSegment(seg); err != nil {
			return fmt.Errorf("stress segment %s: %w", seg, err)
		}

		_, err := blockSet.Invoke(flashctl.BlockArgs{Value: val, Block: seg})
		if err != nil {
			return fmt.Errorf("stress segment %s: %w", seg, err)
		}
	}

	return nil
}

// StressBank erases the bank and fills every segment of it with val,
// iterations times.
func (e *Engine) StressBank(bank flashctl.Addr, val uint16, iterations uint32) error {
	blockSet, err := e.flash.LoadBlockSet()
	if err != nil {
		return fmt.Errorf("stress bank %s: %w", bank, err)
	}
	defer blockSet.Release()

	for i := uint32(0); i < iterations; i++ {
		if err := e.flash.EraseBank(bank); err != nil {
			return fmt.Errorf("stress bank %s: %w", bank, err)
		}

		for s := 0; s < e.geometry.BankSegments; s++ {
			seg := e.geometry.Segment(bank, s)

			_, err := blockSet.Invoke(flashctl.BlockArgs{Value: val, Block: seg})
			if err != nil {
				return fmt.Errorf("stress bank %s: %w", bank, err)
			}
		}
	}

	return nil
}

// CheckBitValues scans every word of seg. Bits that differ from expected
// count as incorrect. Every word is then re-read readCount times and bits
// that change between consecutive reads count as unstable. A bit can count
// as both.
func (e *Engine) CheckBitValues(seg flashctl.Addr, expected uint16, stats *StatsRecord) {
	stats.IncorrectBitCount = 0
	stats.UnstableBitCount = 0

	for i := 0; i < e.geometry.SegmentWords(); i++ {
		a := seg + flashctl.Addr(2*i)

		prev := e.flash.Read(a)
		stats.IncorrectBitCount += uint32(bits.OnesCount16(prev ^ expected))

		for r := 0; r < e.readCount; r++ {
			sample := e.flash.Read(a)
			stats.UnstableBitCount += uint32(bits.OnesCount16(prev ^ sample))
			prev = sample
		}
	}
}

// MeasureLatencies erases seg and writes val to its first word, both timed.
func (e *Engine) MeasureLatencies(seg flashctl.Addr, val uint16, stats *StatsRecord) error {
	erase, err := e.flash.EraseSegmentTimed(seg)
	if err != nil {
		return fmt.Errorf("erase latency of %s: %w", seg, err)
	}

	write, err := e.flash.WriteWordTimed(val, seg)
	if err != nil {
		return fmt.Errorf("write latency of %s: %w", seg, err)
	}

	stats.EraseLatency = erase
	stats.WriteLatency = write

	return nil
}

// PartialWriteStats searches for the shortest partial write of val into
// target that still stores val. Candidates are tried longest first, each on
// a target restored to 0xFFFF. The search stops at the first failure and
// keeps the latency of the last success, or FailLatency when even the
// longest candidate failed.
func (e *Engine) PartialWriteStats(target flashctl.Addr, val uint16, stats *StatsRecord) error {
	seg := e.geometry.SegmentOf(target)
	stats.PartialWriteLatency = FailLatency

	for _, nops := range e.writeNops {
		if err := e.flash.SafeWriteWord(0xFFFF, target, seg); err != nil {
			return fmt.Errorf("restore %s: %w", target, err)
		}

		ticks, err := e.partialWrite(nops, flashctl.WordArgs{Value: val, Target: target})
		if err != nil {
			return fmt.Errorf("partial write of %s with %d NOPs: %w",
				target, nops, err)
		}

		if e.flash.Read(target) != val {
			break
		}

		stats.PartialWriteLatency = ticks
	}

	return nil
}

func (e *Engine) partialWrite(nops int, args flashctl.WordArgs) (uint16, error) {
	routine, err := e.flash.LoadPartialWrite(nops)
	if err != nil {
		return 0, err
	}
	defer routine.Release()

	return routine.Invoke(args)
}

// PartialEraseStats searches for the shortest partial erase of seg that
// still erases its first word. Before every candidate the first word is
// programmed to 0x0000. The policy is the same as PartialWriteStats.
func (e *Engine) PartialEraseStats(seg flashctl.Addr, stats *StatsRecord) error {
	routine, err := e.flash.LoadPartialErase()
	if err != nil {
		return fmt.Errorf("partial erase of %s: %w", seg, err)
	}
	defer routine.Release()

	stats.PartialEraseLatency = FailLatency

	for _, delay := range e.eraseDelays {
		if err := e.flash.WriteWord(0x0000, seg); err != nil {
			return fmt.Errorf("prepare %s: %w", seg, err)
		}

		ticks, err := routine.Invoke(flashctl.EraseArgs{Segment: seg, Delay: delay})
		if err != nil {
			return fmt.Errorf("partial erase of %s with delay %d: %w",
				seg, delay, err)
		}

		if e.flash.Read(seg) != 0xFFFF {
			break
		}

		stats.PartialEraseLatency = ticks
	}

	return nil
}

// Collect runs a full statistics pass on a segment that was filled with
// fill: the bit check, the latencies and both searches. The segment content
// is destroyed.
func (e *Engine) Collect(seg flashctl.Addr, fill uint16) (StatsRecord, error) {
	var stats StatsRecord

	e.CheckBitValues(seg, fill, &stats)

	if err := e.MeasureLatencies(seg, fill, &stats); err != nil {
		return stats, err
	}

	if err := e.PartialWriteStats(seg, fill, &stats); err != nil {
		return stats, err
	}

	if err := e.PartialEraseStats(seg, &stats); err != nil {
		return stats, err
	}

	return stats, nil
}

var _ Flash = (*flashctl.Driver)(nil)
