package config

import (
	"fmt"

	"github.com/typicaltaco116/msp430-flash-experiment1/experiment"
	"github.com/typicaltaco116/msp430-flash-experiment1/flashctl"
)

// Validate checks the configuration. Zero values stand for defaults and are
// accepted. It does not modify cfg.
func Validate(cfg *Config) error {
	g := cfg.Device.Geometry.flash()
	if err := g.Validate(); err != nil {
		return fmt.Errorf("device.geometry: %w", err)
	}

	if err := validateExperiment(&cfg.Experiment, g); err != nil {
		return err
	}

	d := cfg.Device
	if d.ReadNoise < 0 || d.ReadNoise >= 1 {
		return fmt.Errorf("device.read_noise %g is not in [0, 1)", d.ReadNoise)
	}

	if d.RAMSize < 0 {
		return fmt.Errorf("device.ram_size %d is negative", d.RAMSize)
	}

	if p := cfg.Monitor.Port; p != 0 && (p <= 1000 || p > 65535) {
		return fmt.Errorf("monitor.port %d must be 0 or within 1001-65535", p)
	}

	if cfg.Modbus != nil {
		if err := validateModbus(cfg.Modbus, g); err != nil {
			return err
		}
	}

	return nil
}

func validateExperiment(e *ExperimentConfig, g flashctl.Geometry) error {
	if e.Bank < 0 || e.Bank >= g.Banks {
		return fmt.Errorf("experiment.bank %d: device has %d banks",
			e.Bank, g.Banks)
	}

	seen := make(map[int]bool)
	for _, s := range e.Segments {
		if s < 0 || s >= g.BankSegments {
			return fmt.Errorf("experiment.segments: %d: bank has %d segments",
				s, g.BankSegments)
		}

		if seen[s] {
			return fmt.Errorf("experiment.segments: %d listed twice", s)
		}

		seen[s] = true
	}

	total, inc := e.TotalCycles, e.StatIncrement
	if total == 0 {
		total = experiment.DefaultTotalCycles
	}

	if inc == 0 {
		inc = experiment.DefaultStatIncrement
	}

	if total < inc {
		return fmt.Errorf(
			"experiment.total_cycles %d is less than stat_increment %d",
			total, inc)
	}

	for i, n := range e.PartialWriteNops {
		if n < 0 {
			return fmt.Errorf("experiment.partial_write_nops: %d is negative", n)
		}

		if i > 0 && n >= e.PartialWriteNops[i-1] {
			return fmt.Errorf("experiment.partial_write_nops must be descending")
		}
	}

	for i, d := range e.PartialEraseDelays {
		if d == 0 {
			return fmt.Errorf("experiment.partial_erase_delays: 0 is not a delay")
		}

		if i > 0 && d >= e.PartialEraseDelays[i-1] {
			return fmt.Errorf("experiment.partial_erase_delays must be descending")
		}
	}

	return nil
}

func validateModbus(m *ModbusConfig, g flashctl.Geometry) error {
	if m.Endpoint == "" {
		return fmt.Errorf("modbus.endpoint is required")
	}

	if m.Timeout < 0 {
		return fmt.Errorf("modbus.timeout %s is negative", m.Timeout)
	}

	end := int(m.Base) + experiment.HeaderSlots +
		g.BankSegments*experiment.SlotsPerSegment
	if end > 1<<16 {
		return fmt.Errorf(
			"modbus.base %d: %d segment blocks do not fit the register space",
			m.Base, g.BankSegments)
	}

	return nil
}
