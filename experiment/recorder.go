package experiment

import (
	"fmt"
	"strings"

	"github.com/typicaltaco116/msp430-flash-experiment1/datarecording"
)

// Tables written by the RecorderReporter.
const (
	RunTable   = "run"
	StatsTable = "segment_stats"
)

// RunEntry is a row of RunTable.
type RunEntry struct {
	RunID         string
	ChipID        string
	Bank          uint32
	Segments      string
	Fill          uint16
	TotalCycles   uint32
	StatIncrement uint32
	StartTime     string
}

// StatsEntry is a row of StatsTable.
type StatsEntry struct {
	RunID               string
	Checkpoint          int
	Cycles              uint32
	Segment             int
	Addr                uint32
	IncorrectBitCount   uint32
	UnstableBitCount    uint32
	WriteLatency        uint16
	EraseLatency        uint16
	PartialWriteLatency uint16
	PartialEraseLatency uint16
}

// RecorderReporter stores the results in a data recorder.
type RecorderReporter struct {
	recorder datarecording.DataRecorder
}

// NewRecorderReporter creates the result tables in the recorder.
func NewRecorderReporter(recorder datarecording.DataRecorder) *RecorderReporter {
	recorder.CreateTable(RunTable, RunEntry{})
	recorder.CreateTable(StatsTable, StatsEntry{})

	return &RecorderReporter{recorder: recorder}
}

// Header records the run and flushes it right away, so that an aborted run
// can still be identified.
func (r *RecorderReporter) Header(h Header) error {
	segments := make([]string, len(h.Segments))
	for i, s := range h.Segments {
		segments[i] = fmt.Sprint(s)
	}

	r.recorder.InsertData(RunTable, RunEntry{
		RunID:         h.RunID,
		ChipID:        fmt.Sprintf("0x%016X", h.ChipID),
		Bank:          uint32(h.Bank),
		Segments:      strings.Join(segments, ","),
		Fill:          h.Fill,
		TotalCycles:   h.TotalCycles,
		StatIncrement: h.StatIncrement,
		StartTime:     h.StartTime.UTC().Format("2006-01-02T15:04:05Z"),
	})
	r.recorder.Flush()

	return nil
}

// Checkpoint flushes the rows of the previous checkpoint.
func (r *RecorderReporter) Checkpoint(_ Checkpoint) error {
	r.recorder.Flush()
	return nil
}

// Segment records one row.
func (r *RecorderReporter) Segment(s SegmentStats) error {
	r.recorder.InsertData(StatsTable, StatsEntry{
		RunID:               s.RunID,
		Checkpoint:          s.Index,
		Cycles:              s.Cycles,
		Segment:             s.Segment,
		Addr:                uint32(s.Addr),
		IncorrectBitCount:   s.Stats.IncorrectBitCount,
		UnstableBitCount:    s.Stats.UnstableBitCount,
		WriteLatency:        s.Stats.WriteLatency,
		EraseLatency:        s.Stats.EraseLatency,
		PartialWriteLatency: s.Stats.PartialWriteLatency,
		PartialEraseLatency: s.Stats.PartialEraseLatency,
	})

	return nil
}
