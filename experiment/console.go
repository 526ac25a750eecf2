package experiment

import (
	"fmt"
	"io"
	"strings"

	"github.com/typicaltaco116/msp430-flash-experiment1/wear"
)

const rule = "-------------------------------------------------------"

// ConsoleReporter writes a human readable log in the format of the serial
// console of the bench firmware.
type ConsoleReporter struct {
	w io.Writer
}

// NewConsoleReporter creates a ConsoleReporter that writes to w.
func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{w: w}
}

// Header prints the run banner.
func (r *ConsoleReporter) Header(h Header) error {
	var b strings.Builder

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "- Experiment 01")
	fmt.Fprintf(&b, "- Purpose: Get statistics as flash wears to %s cycles\n",
		cycleString(h.TotalCycles))
	fmt.Fprintf(&b, "- Subject Chip ID: 0x%08X\n", h.ChipID)
	fmt.Fprintf(&b, "- Run: %s\n", h.RunID)
	fmt.Fprintln(&b, rule)

	_, err := io.WriteString(r.w, b.String())

	return err
}

// Checkpoint prints the cycle count.
func (r *ConsoleReporter) Checkpoint(c Checkpoint) error {
	_, err := fmt.Fprintf(r.w, "\nCycle count: %d\n", c.Cycles)
	return err
}

// Segment prints the statistics of one segment.
func (r *ConsoleReporter) Segment(s SegmentStats) error {
	var b strings.Builder

	fmt.Fprintf(&b, "\n  Segment # %d Statistics\n", s.Segment)
	fmt.Fprintf(&b, "    Incorrect bits:        %d\n", s.Stats.IncorrectBitCount)
	fmt.Fprintf(&b, "    Unstable bits:         %d\n", s.Stats.UnstableBitCount)
	fmt.Fprintf(&b, "    Write latency:         %d\n", s.Stats.WriteLatency)
	fmt.Fprintf(&b, "    Erase latency:         %d\n", s.Stats.EraseLatency)
	fmt.Fprintf(&b, "    Partial write latency: %s\n",
		latency(s.Stats.PartialWriteLatency))
	fmt.Fprintf(&b, "    Partial erase latency: %s\n",
		latency(s.Stats.PartialEraseLatency))

	_, err := io.WriteString(r.w, b.String())

	return err
}

func latency(v uint16) string {
	if v == wear.FailLatency {
		return "FAIL"
	}

	return fmt.Sprintf("%d", v)
}

func cycleString(n uint32) string {
	switch {
	case n >= 1000000 && n%1000000 == 0:
		return fmt.Sprintf("%dM", n/1000000)
	case n >= 1000 && n%1000 == 0:
		return fmt.Sprintf("%dK", n/1000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
