package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/typicaltaco116/msp430-flash-experiment1/config"
	"github.com/typicaltaco116/msp430-flash-experiment1/datarecording"
	"github.com/typicaltaco116/msp430-flash-experiment1/experiment"
	"github.com/typicaltaco116/msp430-flash-experiment1/flashctl"
	"github.com/typicaltaco116/msp430-flash-experiment1/flashsim"
	"github.com/typicaltaco116/msp430-flash-experiment1/monitoring"
	"github.com/typicaltaco116/msp430-flash-experiment1/tracing"
	"github.com/typicaltaco116/msp430-flash-experiment1/wear"
)

// bench is a simulated device with everything needed to run an experiment on
// it.
type bench struct {
	device   *flashsim.Device
	driver   *flashctl.Driver
	engine   *wear.Engine
	runner   *experiment.Runner
	recorder datarecording.DataRecorder
	monitor  *monitoring.Monitor
	progress *monitoring.ProgressBar
	busy     *tracing.TotalTimeTracer

	closers []io.Closer
}

func assemble(cfg *config.Config, out io.Writer) (*bench, error) {
	b := &bench{}
	if err := b.assemble(cfg, out); err != nil {
		b.close()
		return nil, err
	}

	return b, nil
}

func (b *bench) assemble(cfg *config.Config, out io.Writer) error {
	var err error

	b.buildDevice(cfg)

	var reporters experiment.MultiReporter
	if out != nil {
		reporters = append(reporters, experiment.NewConsoleReporter(out))
	}

	if !cfg.Recording.Disabled {
		b.recorder, err = datarecording.New(cfg.Recording.Path)
		if err != nil {
			return err
		}

		b.closers = append(b.closers, b.recorder)
		reporters = append(reporters, experiment.NewRecorderReporter(b.recorder))
	}

	if cfg.Modbus != nil {
		client, err := experiment.DialModbus(experiment.ModbusConfig{
			Endpoint: cfg.Modbus.Endpoint,
			Timeout:  cfg.Modbus.Timeout,
		})
		if err != nil {
			return fmt.Errorf("modbus: %w", err)
		}

		b.closers = append(b.closers, client)
		reporters = append(reporters, experiment.NewModbusReporter(
			client, cfg.Modbus.UnitID, cfg.Modbus.Base))
	}

	if cfg.Monitor.Enabled {
		b.monitor = monitoring.NewMonitor().WithPortNumber(cfg.Monitor.Port)
		b.monitor.RegisterEngine(b.device.Engine(), b.device.Freq())
	}

	b.buildRunner(cfg, reporters)
	b.attachTracers(cfg)

	if b.monitor != nil {
		b.monitor.RegisterComponent(b.device)
		b.monitor.RegisterComponent(b.driver)
		b.monitor.RegisterComponent(b.engine)
		b.monitor.RegisterComponent(b.runner)
	}

	return nil
}

func (b *bench) buildDevice(cfg *config.Config) {
	d := cfg.Device

	builder := flashsim.MakeBuilder().
		WithGeometry(d.Geometry.Geometry()).
		WithChipID(d.ChipID).
		WithSeed(d.Seed).
		WithReadNoise(d.ReadNoise).
		WithInitialWear(d.InitialWear)
	if d.RAMSize > 0 {
		builder = builder.WithRAMSize(d.RAMSize)
	}

	b.device = builder.Build("Device")
	b.driver = b.device.DriverBuilder().Build("Driver")
	b.engine = wear.MakeBuilder().
		WithFlash(b.driver).
		WithPartialWriteNops(cfg.Experiment.PartialWriteNops).
		WithPartialEraseDelays(cfg.Experiment.PartialEraseDelays).
		Build("Wear")
}

func (b *bench) buildRunner(cfg *config.Config, reporters experiment.MultiReporter) {
	e := cfg.Experiment

	builder := experiment.MakeBuilder().
		WithEngine(b.engine).
		WithGeometry(b.driver.Geometry()).
		WithChipID(b.device.ChipID()).
		WithBank(e.Bank).
		WithSegments(e.Segments).
		WithFill(e.Fill).
		WithTotalCycles(e.TotalCycles).
		WithStatIncrement(e.StatIncrement).
		WithReporter(reporters)

	if b.monitor != nil {
		total := uint64(e.TotalCycles / e.StatIncrement)
		b.progress = b.monitor.CreateProgressBar("Checkpoints", total)
		builder = builder.WithProgress(b.progress)
	}

	b.runner = builder.Build("Runner")
}

func (b *bench) attachTracers(cfg *config.Config) {
	b.busy = tracing.NewTotalTimeTracer(b.device.Engine(), nil)
	tracing.CollectTrace(b.driver, b.busy)

	if !cfg.Experiment.Trace || b.recorder == nil {
		return
	}

	tracer := tracing.NewDBTracer(b.device.Engine(), b.recorder)
	tracing.CollectTrace(b.driver, tracer)
	tracing.CollectTrace(b.runner, tracer)
	b.closers = append(b.closers, closerFunc(func() error {
		tracer.Terminate()
		return nil
	}))
}

func (b *bench) close() error {
	if b.monitor != nil {
		if b.progress != nil {
			b.monitor.CompleteProgressBar(b.progress)
		}

		if err := b.monitor.StopServer(); err != nil {
			log.Printf("monitor: %v", err)
		}
	}

	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i].Close())
	}
	b.closers = nil

	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
