package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/typicaltaco116/msp430-flash-experiment1/datarecording"
	"github.com/typicaltaco116/msp430-flash-experiment1/experiment"
	"github.com/typicaltaco116/msp430-flash-experiment1/wear"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <results.sqlite3>",
	Short: "Print the results stored in a database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		segment, _ := cmd.Flags().GetInt("segment")
		limit, _ := cmd.Flags().GetInt("limit")

		return inspect(cmd, args[0], segment, limit)
	},
}

func init() {
	inspectCmd.Flags().Int("segment", -1, "only show this segment")
	inspectCmd.Flags().Int("limit", 0, "maximum number of rows (0 shows all)")
	rootCmd.AddCommand(inspectCmd)
}

func inspect(cmd *cobra.Command, path string, segment, limit int) error {
	reader, err := datarecording.NewReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	reader.MapTable(experiment.RunTable, experiment.RunEntry{})
	reader.MapTable(experiment.StatsTable, experiment.StatsEntry{})

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	runs, _, err := reader.Query(ctx, experiment.RunTable,
		datarecording.QueryParams{OrderBy: "StartTime"})
	if err != nil {
		return err
	}

	for _, r := range runs {
		run := r.(*experiment.RunEntry)
		fmt.Fprintf(out, "Run %s  chip %s  bank 0x%05X  %d cycles every %d\n",
			run.RunID, run.ChipID, run.Bank, run.TotalCycles, run.StatIncrement)
	}

	params := datarecording.QueryParams{
		OrderBy: "RunID, Cycles, Segment",
		Limit:   limit,
	}
	if segment >= 0 {
		params.Where = "Segment = ?"
		params.Args = []any{segment}
	}

	rows, total, err := reader.Query(ctx, experiment.StatsTable, params)
	if err != nil {
		return err
	}

	printStats(out, rows)
	fmt.Fprintf(out, "%d of %d rows\n", len(rows), total)

	return nil
}

func printStats(out io.Writer, rows []any) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "cycles\tsegment\tincorrect\tunstable\twrite\terase\t"+
		"partial write\tpartial erase\t")

	for _, r := range rows {
		s := r.(*experiment.StatsEntry)
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\t%s\t%s\t\n",
			s.Cycles, s.Segment, s.IncorrectBitCount, s.UnstableBitCount,
			s.WriteLatency, s.EraseLatency,
			latency(s.PartialWriteLatency), latency(s.PartialEraseLatency))
	}

	w.Flush()
}

func latency(v uint16) string {
	if v == wear.FailLatency {
		return "FAIL"
	}

	return fmt.Sprint(v)
}
