package flashctl

import (
	"fmt"

	"github.com/typicaltaco116/msp430-flash-experiment1/eventtimer"
)

// EraseSegment erases the segment at seg. Every word reads 0xFFFF
// afterwards.
func (d *Driver) EraseSegment(seg Addr) error {
	if err := d.geometry.checkSegment(seg); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.startTask("erase", "segment")
	defer d.endTask(id)

	return d.erase(seg, ERASE)
}

// EraseSegmentTimed erases the segment at seg and returns the fast timer
// ticks the operation took.
func (d *Driver) EraseSegmentTimed(seg Addr) (uint16, error) {
	if err := d.geometry.checkSegment(seg); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.startTask("erase", "segment_timed")
	defer d.endTask(id)

	var err error
	ticks := d.timer.Measure(eventtimer.Fast, func() {
		err = d.erase(seg, ERASE)
	})

	return ticks, err
}

// EraseBank erases every segment of the bank at bank at once.
func (d *Driver) EraseBank(bank Addr) error {
	if err := d.geometry.checkBank(bank); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.startTask("erase", "bank")
	defer d.endTask(id)

	return d.erase(bank, MERAS)
}

// EraseBankTimed erases a bank and returns the fast timer ticks it took. A
// bank erase can outlast the fast counter, in which case the value wraps.
func (d *Driver) EraseBankTimed(bank Addr) (uint16, error) {
	if err := d.geometry.checkBank(bank); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.startTask("erase", "bank_timed")
	defer d.endTask(id)

	var err error
	ticks := d.timer.Measure(eventtimer.Fast, func() {
		err = d.erase(bank, MERAS)
	})

	return ticks, err
}

// WriteWord programs value into the word at target. Only bits that are 1
// can be cleared.
func (d *Driver) WriteWord(value uint16, target Addr) error {
	if err := d.geometry.checkWord(target); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.startTask("write", "word")
	defer d.endTask(id)

	return d.write(value, target)
}

// WriteWordTimed programs a word and returns the fast timer ticks it took.
func (d *Driver) WriteWordTimed(value uint16, target Addr) (uint16, error) {
	if err := d.geometry.checkWord(target); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.startTask("write", "word_timed")
	defer d.endTask(id)

	var err error
	ticks := d.timer.Measure(eventtimer.Fast, func() {
		err = d.write(value, target)
	})

	return ticks, err
}

// SafeWriteWord writes value to target while keeping every other word of the
// segment seg. The segment is copied into a holding buffer in RAM, patched,
// erased and written back. If the buffer cannot be allocated the segment is
// left untouched and ErrNoMemory is returned.
func (d *Driver) SafeWriteWord(value uint16, target, seg Addr) error {
	if err := d.geometry.checkSegment(seg); err != nil {
		return err
	}

	if err := d.geometry.checkWord(target); err != nil {
		return err
	}

	if target < seg || target >= seg+Addr(d.geometry.SegmentSize) {
		return fmt.Errorf("word %s not in segment %s: %w",
			target, seg, ErrOutOfRange)
	}

	if d.heap == nil {
		return fmt.Errorf("safe write: no heap: %w", ErrNoMemory)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.startTask("write", "safe_word")
	defer d.endTask(id)

	alloc, err := d.heap.Alloc(d.geometry.SegmentSize)
	if err != nil {
		return fmt.Errorf("safe write holding buffer: %w", err)
	}
	defer alloc.Free()

	buf := make([]uint16, d.geometry.SegmentWords())
	for i := range buf {
		buf[i] = d.bus.Read(seg + Addr(2*i))
	}

	buf[(target-seg)/2] = value

	if err := d.erase(seg, ERASE); err != nil {
		return err
	}

	for i, v := range buf {
		if err := d.write(v, seg+Addr(2*i)); err != nil {
			return err
		}
	}

	return nil
}

// erase runs a segment or mass erase with the dummy write at addr.
func (d *Driver) erase(addr Addr, mode uint16) (err error) {
	s, err := d.open()
	if err != nil {
		return err
	}
	defer s.closeInto(&err)

	s.enable(mode)
	d.bus.Write(addr, 0x0000)

	return s.await()
}

func (d *Driver) write(value uint16, target Addr) (err error) {
	s, err := d.open()
	if err != nil {
		return err
	}
	defer s.closeInto(&err)

	s.enable(WRT)
	d.bus.Write(target, value)

	return s.await()
}
