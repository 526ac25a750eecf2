package flashctl

import (
	"fmt"
	"log"

	"github.com/typicaltaco116/msp430-flash-experiment1/eventtimer"
)

// BlockArgs are the arguments of the block write routines.
type BlockArgs struct {
	Value uint16
	Block Addr
}

// WordArgs are the arguments of the partial write routines.
type WordArgs struct {
	Value  uint16
	Target Addr
}

// EraseArgs are the arguments of the partial erase routines. Delay is in
// fast timer ticks and only used by the timer-delayed routine.
type EraseArgs struct {
	Segment Addr
	Delay   uint16
}

// A Routine is driver code that has to run from RAM. Size is the number of
// bytes the routine occupies once relocated.
type Routine[A any] struct {
	Name string
	Size int

	check func(g Geometry, args A) error
	body  func(d *Driver, args A) (uint16, error)
}

// Relocatable is a routine ready to be invoked from RAM.
type Relocatable[A any] interface {
	// Invoke runs the routine. Timed routines return the measured ticks.
	Invoke(args A) (uint16, error)

	// Release frees the RAM the routine occupies.
	Release()
}

// Relocated is a routine that lives in RAM until it is released.
type Relocated[A any] struct {
	routine  Routine[A]
	d        *Driver
	region   Region
	released bool
}

// Relocate copies r into RAM through the driver's relocator.
func Relocate[A any](d *Driver, r Routine[A]) (*Relocated[A], error) {
	if d.relocator == nil {
		return nil, fmt.Errorf("relocate %s: no relocator: %w",
			r.Name, ErrNoMemory)
	}

	region, err := d.relocator.Relocate(r.Name, r.Size)
	if err != nil {
		return nil, fmt.Errorf("relocate %s: %w", r.Name, err)
	}

	return &Relocated[A]{routine: r, d: d, region: region}, nil
}

// Name returns the name of the relocated routine.
func (r *Relocated[A]) Name() string {
	return r.routine.Name
}

// Invoke runs the routine from RAM.
func (r *Relocated[A]) Invoke(args A) (uint16, error) {
	if r.released {
		log.Panicf("routine %s invoked after release", r.routine.Name)
	}

	if r.routine.check != nil {
		if err := r.routine.check(r.d.geometry, args); err != nil {
			return 0, err
		}
	}

	d := r.d
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.startTask("ram", r.routine.Name)
	defer d.endTask(id)

	leave := r.region.Enter()
	defer leave()

	return r.routine.body(d, args)
}

// Release frees the routine's RAM. It is safe to call more than once.
func (r *Relocated[A]) Release() {
	if r.released {
		return
	}

	r.released = true
	r.region.Release()
}

const (
	blockSetSize      = 96
	partialWriteSize  = 64
	partialEraseSize  = 72
	partialDelaySize  = 96
	bytesPerNop       = 2
	blockSetTimedSize = blockSetSize + 24
)

func checkBlock(g Geometry, a BlockArgs) error {
	return g.checkSegment(a.Block)
}

func checkWordArgs(g Geometry, a WordArgs) error {
	return g.checkWord(a.Target)
}

func checkEraseArgs(g Geometry, a EraseArgs) error {
	return g.checkSegment(a.Segment)
}

// BlockSet fills one block with a value using row bursts of block write.
var BlockSet = Routine[BlockArgs]{
	Name:  "block_set",
	Size:  blockSetSize,
	check: checkBlock,
	body: func(d *Driver, a BlockArgs) (uint16, error) {
		return 0, d.blockSet(a)
	},
}

// BlockSetTimed is BlockSet measured with the fast event timer.
var BlockSetTimed = Routine[BlockArgs]{
	Name:  "block_set_timed",
	Size:  blockSetTimedSize,
	check: checkBlock,
	body: func(d *Driver, a BlockArgs) (uint16, error) {
		var err error
		ticks := d.timer.Measure(eventtimer.Fast, func() {
			err = d.blockSet(a)
		})

		return ticks, err
	},
}

// PartialWrite returns a timed word write that is stopped with an emergency
// exit after the given number of NOPs.
func PartialWrite(nops int) Routine[WordArgs] {
	return Routine[WordArgs]{
		Name:  fmt.Sprintf("partial_write_%d", nops),
		Size:  partialWriteSize + bytesPerNop*nops,
		check: checkWordArgs,
		body: func(d *Driver, a WordArgs) (uint16, error) {
			var err error
			ticks := d.timer.Measure(eventtimer.Fast, func() {
				err = d.partialWrite(a, nops)
			})

			return ticks, err
		},
	}
}

// PartialEraseNops returns a timed segment erase that is stopped with an
// emergency exit after the given number of NOPs. The Delay argument is
// ignored.
func PartialEraseNops(nops int) Routine[EraseArgs] {
	return Routine[EraseArgs]{
		Name:  fmt.Sprintf("partial_erase_%d", nops),
		Size:  partialEraseSize + bytesPerNop*nops,
		check: checkEraseArgs,
		body: func(d *Driver, a EraseArgs) (uint16, error) {
			var err error
			ticks := d.timer.Measure(eventtimer.Fast, func() {
				err = d.partialEraseNops(a.Segment, nops)
			})

			return ticks, err
		},
	}
}

// PartialEraseDelay is a timed segment erase that is stopped with an
// emergency exit once the delay counter reaches the requested ticks.
var PartialEraseDelay = Routine[EraseArgs]{
	Name:  "partial_erase_x",
	Size:  partialDelaySize,
	check: checkEraseArgs,
	body: func(d *Driver, a EraseArgs) (uint16, error) {
		if err := d.waitNotBusy(); err != nil {
			return 0, err
		}

		var err error
		ticks := d.timer.Measure(eventtimer.Fast, func() {
			err = d.partialEraseDelay(a.Segment, a.Delay)
		})

		return ticks, err
	},
}

// LoadBlockSet relocates BlockSet.
func (d *Driver) LoadBlockSet() (Relocatable[BlockArgs], error) {
	r, err := Relocate(d, BlockSet)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// LoadPartialWrite relocates PartialWrite(nops).
func (d *Driver) LoadPartialWrite(nops int) (Relocatable[WordArgs], error) {
	r, err := Relocate(d, PartialWrite(nops))
	if err != nil {
		return nil, err
	}

	return r, nil
}

// LoadPartialErase relocates PartialEraseDelay.
func (d *Driver) LoadPartialErase() (Relocatable[EraseArgs], error) {
	r, err := Relocate(d, PartialEraseDelay)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// blockSet writes one block as row bursts. WAIT is polled after every word
// pair and BUSY between rows.
func (d *Driver) blockSet(a BlockArgs) (err error) {
	s, err := d.open()
	if err != nil {
		return err
	}
	defer s.closeInto(&err)

	addr := a.Block
	pairs := d.geometry.RowSize / 4

	for row := 0; row < d.geometry.RowsPerBlock(); row++ {
		s.enable(WRT | BLKWRT)

		for i := 0; i < pairs; i++ {
			d.bus.Write(addr, a.Value)
			d.bus.Write(addr+2, a.Value)
			addr += 4

			if err := d.waitReady(); err != nil {
				s.emergencyExit()
				return err
			}
		}

		s.enable(WRT)

		if err := s.await(); err != nil {
			return err
		}
	}

	return nil
}

func (d *Driver) partialWrite(a WordArgs, nops int) (err error) {
	s, err := d.open()
	if err != nil {
		return err
	}
	defer s.closeInto(&err)

	s.enable(WRT)
	d.bus.Write(a.Target, a.Value)
	d.nops(nops)
	s.emergencyExit()

	if err := s.close(); err != nil {
		return err
	}

	return d.waitNotBusy()
}

func (d *Driver) partialEraseNops(seg Addr, nops int) (err error) {
	s, err := d.open()
	if err != nil {
		return err
	}
	defer s.closeInto(&err)

	s.enable(ERASE)
	d.bus.Write(seg, 0x0000)
	d.nops(nops)
	s.emergencyExit()

	return nil
}

func (d *Driver) partialEraseDelay(seg Addr, delay uint16) (err error) {
	s := d.unlock()
	defer s.closeInto(&err)

	s.enable(ERASE)
	d.bus.Write(seg, 0x0000)
	err = d.delayTicks(delay)
	s.emergencyExit()

	return err
}
