package config

import (
	"time"

	"github.com/typicaltaco116/msp430-flash-experiment1/experiment"
	"github.com/typicaltaco116/msp430-flash-experiment1/flashctl"
	"github.com/typicaltaco116/msp430-flash-experiment1/wear"
)

// Defaults not owned by another package.
const (
	DefaultModbusTimeout = 5 * time.Second
	DefaultChipID        = 0x0F4D2B1955290001
)

// Normalize fills in defaults. Call it only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Device.Geometry == (GeometryConfig{}) {
		cfg.Device.Geometry = geometryConfig(flashctl.F5529)
	}

	if cfg.Device.ChipID == 0 {
		cfg.Device.ChipID = DefaultChipID
	}

	if cfg.Device.Seed == 0 {
		cfg.Device.Seed = 1
	}

	e := &cfg.Experiment
	if e.TotalCycles == 0 {
		e.TotalCycles = experiment.DefaultTotalCycles
	}

	if e.StatIncrement == 0 {
		e.StatIncrement = experiment.DefaultStatIncrement
	}

	if len(e.Segments) == 0 {
		e.Segments = make([]int, cfg.Device.Geometry.BankSegments)
		for i := range e.Segments {
			e.Segments[i] = i
		}
	}

	if len(e.PartialWriteNops) == 0 {
		e.PartialWriteNops = append([]int(nil), wear.PartialWriteNops...)
	}

	if len(e.PartialEraseDelays) == 0 {
		e.PartialEraseDelays = append([]uint16(nil), wear.PartialEraseDelays...)
	}

	if cfg.Modbus != nil && cfg.Modbus.Timeout == 0 {
		cfg.Modbus.Timeout = DefaultModbusTimeout
	}
}

// Default returns the normalized bench configuration.
func Default() *Config {
	cfg := newConfig()
	Normalize(cfg)

	return cfg
}

// Geometry returns the flash layout.
func (g GeometryConfig) Geometry() flashctl.Geometry {
	return g.flash()
}

func (g GeometryConfig) flash() flashctl.Geometry {
	if g == (GeometryConfig{}) {
		return flashctl.F5529
	}

	return flashctl.Geometry{
		Start:        flashctl.Addr(g.Start),
		Banks:        g.Banks,
		BankSegments: g.BankSegments,
		SegmentSize:  g.SegmentSize,
		RowSize:      g.RowSize,
	}
}

func geometryConfig(g flashctl.Geometry) GeometryConfig {
	return GeometryConfig{
		Start:        uint32(g.Start),
		Banks:        g.Banks,
		BankSegments: g.BankSegments,
		SegmentSize:  g.SegmentSize,
		RowSize:      g.RowSize,
	}
}
