// Package wear cycles flash regions and measures how their cells degrade:
// wrong and unstable bits, write and erase latency, and the shortest partial
// write and erase that still succeed.
package wear

import "fmt"

// ReadCount is how many times every word is re-read to find unstable bits.
const ReadCount = 11

// FailLatency is reported when no partial operation succeeded.
const FailLatency uint16 = 0xFFFF

// StatsRecord holds the measurements of one segment at one checkpoint.
// Latencies are in fast event timer ticks.
type StatsRecord struct {
	IncorrectBitCount   uint32
	UnstableBitCount    uint32
	WriteLatency        uint16
	EraseLatency        uint16
	PartialWriteLatency uint16
	PartialEraseLatency uint16
}

// PartialWriteFailed tells whether no partial write succeeded.
func (s StatsRecord) PartialWriteFailed() bool {
	return s.PartialWriteLatency == FailLatency
}

// PartialEraseFailed tells whether no partial erase succeeded.
func (s StatsRecord) PartialEraseFailed() bool {
	return s.PartialEraseLatency == FailLatency
}

func (s StatsRecord) String() string {
	return fmt.Sprintf(
		"incorrect=%d unstable=%d write=%d erase=%d partial_write=%s partial_erase=%s",
		s.IncorrectBitCount, s.UnstableBitCount,
		s.WriteLatency, s.EraseLatency,
		latencyString(s.PartialWriteLatency),
		latencyString(s.PartialEraseLatency),
	)
}

func latencyString(v uint16) string {
	if v == FailLatency {
		return "FAIL"
	}

	return fmt.Sprintf("%d", v)
}
