// Package cmd provides the command-line interface of flashwear.
package cmd

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flashwear",
	Short: "Characterize flash program/erase wear.",
	Long: `flashwear cycles a flash bank through program/erase cycles and ` +
		`periodically measures wrong and unstable bits, write and erase ` +
		`latency, and the shortest partial write and erase that still succeed.`,
	SilenceUsage: true,
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}

	return 0
}
