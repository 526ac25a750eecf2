package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override the file.
const (
	EnvDB             = "FLASHWEAR_DB"
	EnvTotalCycles    = "FLASHWEAR_TOTAL_CYCLES"
	EnvStatIncrement  = "FLASHWEAR_STAT_INCREMENT"
	EnvSeed           = "FLASHWEAR_SEED"
	EnvMonitorPort    = "FLASHWEAR_MONITOR_PORT"
	EnvModbusEndpoint = "FLASHWEAR_MODBUS_ENDPOINT"
)

// LoadEnv loads .env files into the process environment. Variables that are
// already set win. Missing files are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: %s: %w", f, err)
		}
	}

	return nil
}

// ApplyEnv copies the FLASHWEAR_* variables into cfg.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, os.LookupEnv)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDB); ok {
		cfg.Recording.Path = v
	}

	if v, ok := lookup(EnvModbusEndpoint); ok {
		if cfg.Modbus == nil {
			cfg.Modbus = &ModbusConfig{}
		}

		cfg.Modbus.Endpoint = v
	}

	uints := []struct {
		name string
		dst  *uint32
	}{
		{EnvTotalCycles, &cfg.Experiment.TotalCycles},
		{EnvStatIncrement, &cfg.Experiment.StatIncrement},
	}

	for _, u := range uints {
		v, ok := lookup(u.name)
		if !ok {
			continue
		}

		n, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return fmt.Errorf("config: %s: %w", u.name, err)
		}

		*u.dst = uint32(n)
	}

	if v, ok := lookup(EnvSeed); ok {
		n, err := strconv.ParseInt(v, 0, 64)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvSeed, err)
		}

		cfg.Device.Seed = n
	}

	if v, ok := lookup(EnvMonitorPort); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvMonitorPort, err)
		}

		cfg.Monitor.Enabled = true
		cfg.Monitor.Port = n
	}

	return nil
}
