// Package eventtimer measures the latency of short flash events with a
// free-running hardware counter.
//
// The fast source overflows after about 64 ms, the slow source after exactly
// 2 s. The counter is not interrupt driven, so longer intervals cannot be
// measured. Only one timing region may be open at a time.
package eventtimer

import (
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
)

// StopOverhead is the number of ticks the start and stop sequence itself
// adds to every measurement. It is subtracted when the counter is sampled.
const StopOverhead = 3

// A ClockSource selects the clock that drives the counter.
type ClockSource struct {
	Name string
	Freq physic.Frequency
}

// The two supported clock sources.
var (
	// Fast counts SMCLK, about 1.024 MHz.
	Fast = ClockSource{Name: "SMCLK", Freq: 1024 * physic.KiloHertz}

	// Slow counts ACLK, 32.768 kHz.
	Slow = ClockSource{Name: "ACLK", Freq: 32768 * physic.Hertz}
)

// Hz returns the source frequency in whole Hertz.
func (s ClockSource) Hz() uint64 {
	return uint64(s.Freq / physic.Hertz)
}

// Duration converts a tick count of this source into real time.
func (s ClockSource) Duration(ticks uint16) time.Duration {
	hz := s.Hz()
	if hz == 0 {
		log.Panic("clock source frequency cannot be 0")
	}

	return time.Duration(uint64(ticks) * uint64(time.Second) / hz)
}

// Wrap returns how long the 16-bit counter runs before it overflows.
func (s ClockSource) Wrap() time.Duration {
	return time.Duration(uint64(1<<16) * uint64(time.Second) / s.Hz())
}

func (s ClockSource) String() string {
	return s.Name + "@" + s.Freq.String()
}

// Counter is the hardware counter behind the timer.
type Counter interface {
	// Clear resets the count to zero.
	Clear()

	// Start lets the counter run continuously from the given source.
	Start(src ClockSource)

	// Halt stops the counter, keeping its count.
	Halt()

	// Count samples the counter.
	Count() uint16
}

// Timer is the event timer. The most recently stopped value stays readable
// until the next Start.
type Timer struct {
	mu      sync.Mutex
	counter Counter
	src     ClockSource
	running bool
	value   uint16
}

// New creates a timer on top of the given counter.
func New(counter Counter) *Timer {
	return &Timer{counter: counter, src: Fast}
}

// Start resets and arms the counter against the given source. Starting a
// timer that is already running is a programming error.
func (t *Timer) Start(src ClockSource) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		log.Panic("event timer: nested timing regions are not allowed")
	}

	t.running = true
	t.src = src
	t.value = 0

	t.counter.Clear()
	t.counter.Start(src)
}

// Stop samples the counter, corrects it for StopOverhead and halts it.
func (t *Timer) Stop() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		log.Panic("event timer: stop without start")
	}

	count := t.counter.Count()
	t.counter.Halt()

	if count < StopOverhead {
		count = StopOverhead
	}

	t.value = count - StopOverhead
	t.running = false

	return t.value
}

// Value returns the most recently stopped value.
func (t *Timer) Value() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.value
}

// Source returns the clock source of the current or last region.
func (t *Timer) Source() ClockSource {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.src
}

// Elapsed returns the most recently stopped value in real time.
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.src.Duration(t.value)
}

// Running tells whether a timing region is open.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.running
}

// A Region is an open timing region. End may be called any number of times;
// only the first call stops the timer.
type Region struct {
	timer *Timer
	once  sync.Once
	ticks uint16
}

// Begin starts the timer and returns the region that stops it.
func (t *Timer) Begin(src ClockSource) *Region {
	t.Start(src)
	return &Region{timer: t}
}

// End stops the timer and returns the measured ticks.
func (r *Region) End() uint16 {
	r.once.Do(func() {
		r.ticks = r.timer.Stop()
	})

	return r.ticks
}

// Measure times fn. The timer is stopped however fn exits.
func (t *Timer) Measure(src ClockSource, fn func()) (ticks uint16) {
	r := t.Begin(src)
	defer func() {
		ticks = r.End()
	}()

	fn()

	return
}
