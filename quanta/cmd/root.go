// Package cmd provides the command-line interface for quanta.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quanta",
	Short: "Quanta manages regions of discrete volume patches.",
	Long: `Quanta manages regions of discrete volume patches. Each patch ` +
		`carries an SU(2) representation label, a derived volume eigenvalue, ` +
		`and per-patch diagnostics. The CLI currently provides a demo region ` +
		`runner (run).`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
