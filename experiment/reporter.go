// Package experiment drives a long-running wear experiment: it alternates
// statistics passes over the segments of a flash bank with stress cycles on
// the whole bank and hands every result to a set of reporters.
package experiment

import (
	"errors"
	"time"

	"github.com/typicaltaco116/msp430-flash-experiment1/flashctl"
	"github.com/typicaltaco116/msp430-flash-experiment1/wear"
)

// Header describes a run. It is reported once, before the first checkpoint.
type Header struct {
	RunID         string
	ChipID        uint64
	Bank          flashctl.Addr
	Segments      []int
	Fill          uint16
	TotalCycles   uint32
	StatIncrement uint32
	StartTime     time.Time
}

// Checkpoint marks the start of a statistics pass.
type Checkpoint struct {
	RunID  string
	Index  int
	Cycles uint32
}

// SegmentStats is the outcome of one statistics pass on one segment.
type SegmentStats struct {
	Checkpoint

	Segment int
	Addr    flashctl.Addr
	Stats   wear.StatsRecord
}

// A ResultReporter receives the results of an experiment as they are produced.
type ResultReporter interface {
	Header(h Header) error
	Checkpoint(c Checkpoint) error
	Segment(s SegmentStats) error
}

// MultiReporter fans every report out to all of its members. Every member is
// called even if an earlier one fails.
type MultiReporter []ResultReporter

// Header reports the header to every member.
func (m MultiReporter) Header(h Header) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Header(h))
	}

	return errors.Join(errs...)
}

// Checkpoint reports the checkpoint to every member.
func (m MultiReporter) Checkpoint(c Checkpoint) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Checkpoint(c))
	}

	return errors.Join(errs...)
}

// Segment reports the segment statistics to every member.
func (m MultiReporter) Segment(s SegmentStats) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Segment(s))
	}

	return errors.Join(errs...)
}
