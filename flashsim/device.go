// Package flashsim simulates an MSP430-style flash device: the flash array
// with a wearing cell model, its controller, two timer counters and a small
// RAM that holds relocated routines.
//
// Time is counted in CPU cycles on a timing.SerialEngine. Every bus access
// moves the clock forward, and controller operations complete through
// scheduled events.
package flashsim

import (
	"fmt"
	"log"
	"math/rand"
	"sync"

	"github.com/typicaltaco116/msp430-flash-experiment1/flashctl"
	"github.com/typicaltaco116/msp430-flash-experiment1/timing"
)

// Costs are the CPU cycles each kind of bus access takes.
type Costs struct {
	ReadReg  timing.VTimeInCycle
	WriteReg timing.VTimeInCycle
	Read     timing.VTimeInCycle
	Write    timing.VTimeInCycle
	Nop      timing.VTimeInCycle
}

// DefaultCosts are the costs of the MSP430 addressing modes the driver uses.
var DefaultCosts = Costs{
	ReadReg:  3,
	WriteReg: 4,
	Read:     3,
	Write:    4,
	Nop:      1,
}

// ChipIDAddr is where the device descriptor keeps the chip ID.
const ChipIDAddr flashctl.Addr = 0x1A0A

// busyRead is what flash returns when read while the controller is busy.
const busyRead uint16 = 0x3FFF

type opKind int

const (
	opErase opKind = iota
	opBankErase
	opMassErase
	opWrite
	opBlock
)

func (k opKind) String() string {
	switch k {
	case opErase:
		return "erase"
	case opBankErase:
		return "bank_erase"
	case opMassErase:
		return "mass_erase"
	case opWrite:
		return "write"
	case opBlock:
		return "block_write"
	}

	return "unknown"
}

type operation struct {
	kind      opKind
	addr      flashctl.Addr
	value     uint16
	start     timing.VTimeInCycle
	end       timing.VTimeInCycle
	scheduled bool
	waitUntil timing.VTimeInCycle
	words     int
}

type opDoneEvent struct {
	op *operation
}

// Device is the simulated chip.
type Device struct {
	name string
	mu   sync.Mutex

	engine   *timing.SerialEngine
	freq     timing.FreqInHz
	geometry flashctl.Geometry
	costs    Costs
	timing   FlashTiming
	cells    cellModel

	flash       map[flashctl.Addr]uint16
	other       map[flashctl.Addr]uint16
	wear        map[flashctl.Addr]uint64
	initialWear uint64

	fctl1 uint16
	fctl3 uint16
	op    *operation

	ramDepth  int
	jitter    *rand.Rand
	noise     *rand.Rand
	noiseRate float64

	ram      *RAM
	ta0, ta1 *Counter
}

// Lock holds the device still. Every bus access waits until Unlock.
func (d *Device) Lock() {
	d.mu.Lock()
}

// Unlock releases the device.
func (d *Device) Unlock() {
	d.mu.Unlock()
}

// Name returns the name of the device.
func (d *Device) Name() string {
	return d.name
}

// Engine returns the engine that keeps the device time.
func (d *Device) Engine() *timing.SerialEngine {
	return d.engine
}

// Freq returns the CPU clock frequency.
func (d *Device) Freq() timing.FreqInHz {
	return d.freq
}

// Geometry returns the flash layout.
func (d *Device) Geometry() flashctl.Geometry {
	return d.geometry
}

// RAM returns the device RAM, which serves as heap and relocator.
func (d *Device) RAM() *RAM {
	return d.ram
}

// TA0 returns the counter behind the event timer.
func (d *Device) TA0() *Counter {
	return d.ta0
}

// TA1 returns the counter used for timer-delayed partial erases.
func (d *Device) TA1() *Counter {
	return d.ta1
}

// Now returns the current CPU cycle.
func (d *Device) Now() timing.VTimeInCycle {
	return d.engine.CurrentTime()
}

// EraseCount returns how many erases the segment containing a went through,
// including the initial wear.
func (d *Device) EraseCount(a flashctl.Addr) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.wearOf(a)
}

// ChipID reads the 64-bit chip ID from the device descriptor.
func (d *Device) ChipID() uint64 {
	var id uint64
	for i := 0; i < 4; i++ {
		id |= uint64(d.Read(ChipIDAddr+flashctl.Addr(2*i))) << (16 * i)
	}

	return id
}

// ReadReg reads a flash controller register.
func (d *Device) ReadReg(r flashctl.Reg) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.access(d.costs.ReadReg)

	switch r {
	case flashctl.FCTL1:
		return flashctl.FRPW | d.fctl1
	case flashctl.FCTL3:
		return flashctl.FRPW | d.status()
	}

	return 0
}

// WriteReg writes a flash controller register. A write without the password
// is a key violation, which resets the controller.
func (d *Device) WriteReg(r flashctl.Reg, v uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.access(d.costs.WriteReg)

	if v&flashctl.PWMask != flashctl.FWPW {
		d.keyViolation()
		return
	}

	bits := v & flashctl.BitsMask

	switch r {
	case flashctl.FCTL1:
		d.writeFCTL1(bits)
	case flashctl.FCTL3:
		if bits&flashctl.EMEX != 0 {
			d.emergencyExit()
		}

		d.fctl3 = bits & (flashctl.KEYV | flashctl.ACCVIFG |
			flashctl.LOCK | flashctl.EMEX)
	}
}

// Read reads a word.
func (d *Device) Read(a flashctl.Addr) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.access(d.costs.Read)

	if !d.geometry.Contains(a) {
		return d.other[a]
	}

	if d.op != nil {
		return busyRead
	}

	v := d.get(a)
	if d.noise != nil && d.noise.Float64() < d.noiseRate {
		v ^= 1 << d.noise.Intn(16)
	}

	return v
}

// Write stores a word. In flash, it triggers the operation selected in
// FCTL1.
func (d *Device) Write(a flashctl.Addr, v uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.access(d.costs.Write)

	if !d.geometry.Contains(a) {
		d.other[a] = v
		return
	}

	if d.fctl3&flashctl.LOCK != 0 {
		d.fctl3 |= flashctl.ACCVIFG
		return
	}

	if d.op != nil {
		if d.acceptsBlockWord() {
			d.blockWord(a, v)
			return
		}

		d.fctl3 |= flashctl.ACCVIFG

		return
	}

	d.trigger(a, v)
}

// Nop executes one no-operation instruction.
func (d *Device) Nop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.access(d.costs.Nop)
}

// Handle completes controller operations.
func (d *Device) Handle(evt any) error {
	switch e := evt.(type) {
	case opDoneEvent:
		if d.op == e.op {
			d.complete(e.op.end - e.op.start)
		}
	default:
		return fmt.Errorf("flashsim: cannot handle event of type %T", evt)
	}

	return nil
}

func (d *Device) status() uint16 {
	v := d.fctl3

	if d.op != nil {
		v |= flashctl.BUSY
	}

	if d.op == nil || d.op.kind != opBlock || d.now() >= d.op.waitUntil {
		v |= flashctl.WAIT
	}

	return v
}

func (d *Device) writeFCTL1(bits uint16) {
	bits &= flashctl.ERASE | flashctl.MERAS | flashctl.WRT | flashctl.BLKWRT

	if d.op == nil {
		d.fctl1 = bits
		return
	}

	if d.op.kind != opBlock || d.op.scheduled {
		d.fctl3 |= flashctl.ACCVIFG
		return
	}

	d.fctl1 = bits
	if bits&flashctl.BLKWRT == 0 {
		d.finishBlock()
	}
}

func (d *Device) keyViolation() {
	if d.op != nil {
		d.complete(d.now() - d.op.start)
	}

	d.fctl1 = 0
	d.fctl3 = flashctl.LOCK | flashctl.KEYV
}

func (d *Device) emergencyExit() {
	if d.op == nil {
		return
	}

	d.complete(d.now() - d.op.start)
}

func (d *Device) trigger(a flashctl.Addr, v uint16) {
	mode := d.fctl1

	switch {
	case mode&flashctl.ERASE != 0 && mode&flashctl.MERAS != 0:
		d.startOp(opMassErase, d.geometry.Start, 0, d.timing.MassErase)
	case mode&flashctl.MERAS != 0:
		d.startOp(opBankErase, d.geometry.BankOf(a), 0, d.timing.MassErase)
	case mode&flashctl.ERASE != 0:
		d.startOp(opErase, d.geometry.SegmentOf(a), 0, d.timing.SegmentErase)
	case mode&flashctl.WRT != 0 && mode&flashctl.BLKWRT != 0:
		if d.ramDepth == 0 {
			d.fctl3 |= flashctl.ACCVIFG
			return
		}

		d.op = &operation{kind: opBlock, addr: a, start: d.now()}
		d.blockWord(a, v)
	case mode&flashctl.WRT != 0:
		d.startOp(opWrite, a, v, d.timing.WordWrite)
	default:
		d.fctl3 |= flashctl.ACCVIFG
	}
}

func (d *Device) startOp(
	kind opKind,
	a flashctl.Addr,
	v uint16,
	duration timing.VTimeInCycle,
) {
	d.op = &operation{kind: kind, addr: a, value: v, start: d.now()}
	d.schedule(d.op, d.now()+duration)
}

func (d *Device) schedule(op *operation, at timing.VTimeInCycle) {
	op.end = at
	op.scheduled = true

	d.engine.Schedule(timing.ScheduledEvent{
		Event:   opDoneEvent{op: op},
		Time:    at,
		Handler: d,
	})
}

func (d *Device) acceptsBlockWord() bool {
	return d.op.kind == opBlock &&
		!d.op.scheduled &&
		d.fctl1&flashctl.BLKWRT != 0 &&
		d.now() >= d.op.waitUntil
}

func (d *Device) blockWord(a flashctl.Addr, v uint16) {
	d.set(a, d.cells.program(d.get(a), v, a, d.wearOf(a), d.timing.BlockPair))

	d.op.words++
	if d.op.words%2 == 0 {
		d.op.waitUntil = d.now() + d.timing.BlockPair
	}
}

func (d *Device) finishBlock() {
	at := d.now()
	if d.op.waitUntil > at {
		at = d.op.waitUntil
	}

	d.schedule(d.op, at+d.timing.BlockRowEnd)
}

// complete applies the effect of the current operation as if it had run for
// elapsed cycles and makes the controller idle.
func (d *Device) complete(elapsed timing.VTimeInCycle) {
	op := d.op
	d.op = nil

	switch op.kind {
	case opErase:
		d.eraseSegment(op.addr, elapsed)
	case opBankErase:
		d.eraseRange(op.addr, d.geometry.BankSegments, elapsed)
	case opMassErase:
		d.eraseRange(op.addr, d.geometry.Banks*d.geometry.BankSegments, elapsed)
	case opWrite:
		d.set(op.addr,
			d.cells.program(d.get(op.addr), op.value, op.addr,
				d.wearOf(op.addr), elapsed))
	case opBlock:
	}
}

func (d *Device) eraseRange(
	start flashctl.Addr,
	segments int,
	elapsed timing.VTimeInCycle,
) {
	for i := 0; i < segments; i++ {
		d.eraseSegment(d.geometry.Segment(start, i), elapsed)
	}
}

func (d *Device) eraseSegment(seg flashctl.Addr, elapsed timing.VTimeInCycle) {
	wear := d.wearOf(seg)

	for i := 0; i < d.geometry.SegmentWords(); i++ {
		a := seg + flashctl.Addr(2*i)
		d.set(a, d.cells.erase(d.get(a), a, wear, elapsed))
	}

	d.wear[seg]++
}

func (d *Device) get(a flashctl.Addr) uint16 {
	v, ok := d.flash[a]
	if !ok {
		return 0xFFFF
	}

	return v
}

func (d *Device) set(a flashctl.Addr, v uint16) {
	if v == 0xFFFF {
		delete(d.flash, a)
		return
	}

	d.flash[a] = v
}

func (d *Device) wearOf(a flashctl.Addr) uint64 {
	return d.initialWear + d.wear[d.geometry.SegmentOf(a)]
}

func (d *Device) now() timing.VTimeInCycle {
	return d.engine.CurrentTime()
}

// access runs the CPU for one bus access. Running from flash, the CPU is
// held while the controller is busy.
func (d *Device) access(cost timing.VTimeInCycle) {
	d.stall()
	d.runFor(cost)
}

func (d *Device) stall() {
	if d.ramDepth > 0 || d.op == nil || !d.op.scheduled {
		return
	}

	target := d.op.end
	if d.timing.StallJitter > 0 {
		target += timing.VTimeInCycle(
			d.jitter.Int63n(int64(d.timing.StallJitter) + 1))
	}

	if target > d.now() {
		d.runUntil(target)
	}
}

func (d *Device) runFor(cycles timing.VTimeInCycle) {
	d.runUntil(d.now() + cycles)
}

func (d *Device) runUntil(t timing.VTimeInCycle) {
	if err := d.engine.RunUntil(t); err != nil {
		log.Panic(err)
	}
}

var _ flashctl.Bus = (*Device)(nil)
