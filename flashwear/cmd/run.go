package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/typicaltaco116/msp430-flash-experiment1/config"
)

var runCmd = &cobra.Command{
	Use:   "run [config.yaml]",
	Short: "Run a wear experiment",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}

		cfg, err := loadConfig(cmd, path)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return runExperiment(ctx, cmd, cfg)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringSlice("env", nil, "dotenv files to load (default .env)")
	f.String("db", "", "result database name, without the .sqlite3 suffix")
	f.Bool("no-db", false, "do not record results")
	f.Bool("trace", false, "record every flash operation into the database")
	f.Bool("monitor", false, "serve the monitoring dashboard")
	f.Int("port", 0, "monitoring server port (0 picks a free port)")
	f.Bool("open", false, "open the dashboard in a browser")
	f.Bool("quiet", false, "do not print statistics")
	f.Uint32("total-cycles", 0, "P/E cycles to run")
	f.Uint32("stat-increment", 0, "P/E cycles between statistics passes")
	rootCmd.AddCommand(runCmd)
}

// loadConfig builds the configuration from the file, the environment and
// the flags, in increasing order of precedence.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	f := cmd.Flags()

	envFiles, _ := f.GetStringSlice("env")
	if err := config.LoadEnv(envFiles...); err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if f.Changed("db") {
		cfg.Recording.Path, _ = f.GetString("db")
	}

	if f.Changed("no-db") {
		cfg.Recording.Disabled, _ = f.GetBool("no-db")
	}

	if f.Changed("trace") {
		cfg.Experiment.Trace, _ = f.GetBool("trace")
	}

	if f.Changed("port") {
		cfg.Monitor.Enabled = true
		cfg.Monitor.Port, _ = f.GetInt("port")
	}

	if f.Changed("monitor") {
		cfg.Monitor.Enabled, _ = f.GetBool("monitor")
	}

	if f.Changed("open") {
		cfg.Monitor.OpenBrowser, _ = f.GetBool("open")
	}

	if f.Changed("total-cycles") {
		cfg.Experiment.TotalCycles, _ = f.GetUint32("total-cycles")
	}

	if f.Changed("stat-increment") {
		cfg.Experiment.StatIncrement, _ = f.GetUint32("stat-increment")
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	config.Normalize(cfg)

	return cfg, nil
}

func runExperiment(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	var out io.Writer = cmd.OutOrStdout()
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		out = nil
	}

	b, err := assemble(cfg, out)
	if err != nil {
		return err
	}

	if b.monitor != nil {
		if _, err := b.monitor.StartServer(); err != nil {
			b.close()
			return err
		}

		if cfg.Monitor.OpenBrowser {
			if err := b.monitor.OpenBrowser(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "cannot open browser: %v\n", err)
			}
		}
	}

	start := time.Now()
	runErr := b.runner.Run(ctx)

	fmt.Fprintf(cmd.ErrOrStderr(),
		"\nRun %s: %d flash operations, %.3f s device busy, %s wall time\n",
		b.runner.RunID(), b.busy.Count(),
		float64(b.device.Freq().Seconds(b.busy.TotalTime())),
		time.Since(start).Round(time.Millisecond))

	if err := b.close(); err != nil && runErr == nil {
		runErr = err
	}

	return runErr
}
