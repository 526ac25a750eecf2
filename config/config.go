// Package config loads the experiment configuration from a YAML file, with
// overrides from the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/typicaltaco116/msp430-flash-experiment1/experiment"
)

// Config is the root of an experiment file.
type Config struct {
	Experiment ExperimentConfig `yaml:"experiment"`
	Device     DeviceConfig     `yaml:"device"`
	Recording  RecordingConfig  `yaml:"recording"`
	Monitor    MonitorConfig    `yaml:"monitor"`

	// Modbus is opt-in.
	Modbus *ModbusConfig `yaml:"modbus"`
}

// ExperimentConfig describes the wear run.
type ExperimentConfig struct {
	Bank          int    `yaml:"bank"`
	Segments      []int  `yaml:"segments"`
	Fill          uint16 `yaml:"fill"`
	TotalCycles   uint32 `yaml:"total_cycles"`
	StatIncrement uint32 `yaml:"stat_increment"`

	PartialWriteNops   []int    `yaml:"partial_write_nops"`
	PartialEraseDelays []uint16 `yaml:"partial_erase_delays"`

	Trace bool `yaml:"trace"`
}

// GeometryConfig is the flash layout. Sizes are in bytes.
type GeometryConfig struct {
	Start        uint32 `yaml:"start"`
	Banks        int    `yaml:"banks"`
	BankSegments int    `yaml:"bank_segments"`
	SegmentSize  int    `yaml:"segment_size"`
	RowSize      int    `yaml:"row_size"`
}

// DeviceConfig describes the simulated device.
type DeviceConfig struct {
	Geometry    GeometryConfig `yaml:"geometry"`
	ChipID      uint64         `yaml:"chip_id"`
	Seed        int64          `yaml:"seed"`
	ReadNoise   float64        `yaml:"read_noise"`
	InitialWear uint64         `yaml:"initial_wear"`
	RAMSize     int            `yaml:"ram_size"`
}

// RecordingConfig controls the result database.
type RecordingConfig struct {
	// Path is the database name without the .sqlite3 suffix. A fresh name
	// is generated when empty.
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// MonitorConfig controls the monitoring server.
type MonitorConfig struct {
	Enabled     bool `yaml:"enabled"`
	Port        int  `yaml:"port"`
	OpenBrowser bool `yaml:"open_browser"`
}

// ModbusConfig points at a Modbus TCP data logger.
type ModbusConfig struct {
	Endpoint string        `yaml:"endpoint"`
	UnitID   uint8         `yaml:"unit_id"`
	Base     uint16        `yaml:"base"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Load reads the file at path. An empty path yields an empty configuration.
// Unknown keys are rejected. The result is neither validated nor normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return newConfig(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads a configuration document from r.
func Decode(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	cfg := newConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

func newConfig() *Config {
	return &Config{
		Experiment: ExperimentConfig{Bank: experiment.DefaultBank},
	}
}

// Encode writes cfg as YAML.
func Encode(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(cfg); err != nil {
		return err
	}

	return enc.Close()
}
