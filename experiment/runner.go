package experiment

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rs/xid"
	"github.com/typicaltaco116/msp430-flash-experiment1/flashctl"
	"github.com/typicaltaco116/msp430-flash-experiment1/hooking"
	"github.com/typicaltaco116/msp430-flash-experiment1/tracing"
	"github.com/typicaltaco116/msp430-flash-experiment1/wear"
)

// Defaults of the bench experiment: bank D of an F5529 cycled to 2M P/E
// cycles, with statistics every 2000 cycles.
const (
	DefaultBank          = 3
	DefaultTotalCycles   = 2000000
	DefaultStatIncrement = 2000
)

// Engine is the part of the wear engine the runner uses.
type Engine interface {
	Collect(seg flashctl.Addr, fill uint16) (wear.StatsRecord, error)
	StressBank(bank flashctl.Addr, val uint16, iterations uint32) error
}

// Progress is told about every finished checkpoint.
type Progress interface {
	IncrementFinished(amount uint64)
}

// Runner runs the experiment.
type Runner struct {
	*hooking.HookableBase

	name          string
	runID         string
	engine        Engine
	geometry      flashctl.Geometry
	chipID        uint64
	bank          flashctl.Addr
	segments      []int
	fill          uint16
	totalCycles   uint32
	statIncrement uint32
	reporter      ResultReporter
	progress      Progress
}

// Builder can build runners.
type Builder struct {
	engine        Engine
	geometry      flashctl.Geometry
	chipID        uint64
	bank          int
	segments      []int
	fill          uint16
	totalCycles   uint32
	statIncrement uint32
	reporter      ResultReporter
	progress      Progress
	runID         string
}

// MakeBuilder returns a builder with the bench defaults.
func MakeBuilder() Builder {
	return Builder{
		bank:          DefaultBank,
		totalCycles:   DefaultTotalCycles,
		statIncrement: DefaultStatIncrement,
	}
}

// WithEngine sets the wear engine.
func (b Builder) WithEngine(e Engine) Builder {
	b.engine = e
	return b
}

// WithGeometry sets the flash geometry.
func (b Builder) WithGeometry(g flashctl.Geometry) Builder {
	b.geometry = g
	return b
}

// WithChipID sets the chip ID reported in the header.
func (b Builder) WithChipID(id uint64) Builder {
	b.chipID = id
	return b
}

// WithBank sets the index of the bank under test.
func (b Builder) WithBank(i int) Builder {
	b.bank = i
	return b
}

// WithSegments sets the segments, by index in the bank, that get a
// statistics pass. All segments are used by default.
func (b Builder) WithSegments(segments []int) Builder {
	b.segments = segments
	return b
}

// WithFill sets the value the bank is programmed with.
func (b Builder) WithFill(v uint16) Builder {
	b.fill = v
	return b
}

// WithTotalCycles sets how many P/E cycles the run covers.
func (b Builder) WithTotalCycles(n uint32) Builder {
	b.totalCycles = n
	return b
}

// WithStatIncrement sets the P/E cycles between statistics passes.
func (b Builder) WithStatIncrement(n uint32) Builder {
	b.statIncrement = n
	return b
}

// WithReporter sets where results go.
func (b Builder) WithReporter(r ResultReporter) Builder {
	b.reporter = r
	return b
}

// WithProgress sets the progress tracker.
func (b Builder) WithProgress(p Progress) Builder {
	b.progress = p
	return b
}

// WithRunID sets the run ID. A fresh ID is generated by default.
func (b Builder) WithRunID(id string) Builder {
	b.runID = id
	return b
}

// Build creates the runner.
func (b Builder) Build(name string) *Runner {
	if b.engine == nil {
		log.Panic("experiment: engine is required")
	}

	if err := b.geometry.Validate(); err != nil {
		log.Panicf("experiment: %v", err)
	}

	if b.bank < 0 || b.bank >= b.geometry.Banks {
		log.Panicf("experiment: bank %d out of range", b.bank)
	}

	if b.statIncrement == 0 {
		log.Panic("experiment: stat increment cannot be 0")
	}

	segments := b.segments
	if len(segments) == 0 {
		segments = make([]int, b.geometry.BankSegments)
		for i := range segments {
			segments[i] = i
		}
	}

	for _, s := range segments {
		if s < 0 || s >= b.geometry.BankSegments {
			log.Panicf("experiment: segment %d out of range", s)
		}
	}

	r := &Runner{
		HookableBase:  hooking.NewHookableBase(),
		name:          name,
		runID:         b.runID,
		engine:        b.engine,
		geometry:      b.geometry,
		chipID:        b.chipID,
		bank:          b.geometry.Bank(b.bank),
		segments:      segments,
		fill:          b.fill,
		totalCycles:   b.totalCycles,
		statIncrement: b.statIncrement,
		reporter:      b.reporter,
		progress:      b.progress,
	}

	if r.runID == "" {
		r.runID = xid.New().String()
	}

	if r.reporter == nil {
		r.reporter = MultiReporter{}
	}

	return r
}

// Name returns the name of the runner.
func (r *Runner) Name() string {
	return r.name
}

// RunID returns the ID of the run.
func (r *Runner) RunID() string {
	return r.runID
}

// Checkpoints returns the number of statistics passes of a full run.
func (r *Runner) Checkpoints() uint32 {
	return r.totalCycles / r.statIncrement
}

// Run reports the header and then, for every checkpoint, collects the
// statistics of every segment and stresses the bank up to the next
// checkpoint. The context is checked between segments.
//
// The first checkpoint sees the bank as found, before any stress.
func (r *Runner) Run(ctx context.Context) error {
	err := r.reporter.Header(Header{
		RunID:         r.runID,
		ChipID:        r.chipID,
		Bank:          r.bank,
		Segments:      r.segments,
		Fill:          r.fill,
		TotalCycles:   r.totalCycles,
		StatIncrement: r.statIncrement,
		StartTime:     time.Now(),
	})
	if err != nil {
		return fmt.Errorf("report header: %w", err)
	}

	for i := uint32(0); i < r.Checkpoints(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		cp := Checkpoint{
			RunID:  r.runID,
			Index:  int(i),
			Cycles: i * r.statIncrement,
		}

		if err := r.runCheckpoint(ctx, cp); err != nil {
			return err
		}

		if r.progress != nil {
			r.progress.IncrementFinished(1)
		}
	}

	return nil
}

func (r *Runner) runCheckpoint(ctx context.Context, cp Checkpoint) error {
	id := r.startTask("checkpoint", fmt.Sprintf("cycles_%d", cp.Cycles))
	defer r.endTask(id)

	if err := r.reporter.Checkpoint(cp); err != nil {
		return fmt.Errorf("report checkpoint %d: %w", cp.Index, err)
	}

	for _, s := range r.segments {
		if err := ctx.Err(); err != nil {
			return err
		}

		addr := r.geometry.Segment(r.bank, s)

		stats, err := r.engine.Collect(addr, r.fill)
		if err != nil {
			return fmt.Errorf("checkpoint %d, segment %d: %w", cp.Index, s, err)
		}

		err = r.reporter.Segment(SegmentStats{
			Checkpoint: cp,
			Segment:    s,
			Addr:       addr,
			Stats:      stats,
		})
		if err != nil {
			return fmt.Errorf("report segment %d: %w", s, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	err := r.engine.StressBank(r.bank, r.fill, r.statIncrement)
	if err != nil {
		return fmt.Errorf("checkpoint %d, stress: %w", cp.Index, err)
	}

	return nil
}

func (r *Runner) startTask(kind, what string) string {
	if r.NumHooks() == 0 {
		return ""
	}

	id := xid.New().String()
	tracing.StartTask(id, "", r, kind, what, nil)

	return id
}

func (r *Runner) endTask(id string) {
	if id == "" {
		return
	}

	tracing.EndTask(id, r)
}
