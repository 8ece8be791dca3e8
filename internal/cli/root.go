// Package cli implements the orchestrate command tree.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	rootFlag string
	verbose  bool
	rootCmd  *cobra.Command
)

// errReported marks a failure whose JSON result was already printed; it
// only sets the exit code.
var errReported = errors.New("reported")

func init() {
	rootCmd = &cobra.Command{
		Use:   "orchestrate",
		Short: "orchestrate - task queue and archival pipeline",
		Long: `orchestrate runs a file-backed task queue for Claude Code executors.

Actions take JSON parameters and print a JSON result:

  orchestrate <action> --params '{"task_id": "..."}'

Results carry "status" (success, noop or error) and "message". The exit code
is 1 only when the parameters are malformed or a store cannot be read or
written.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "", "Installation root (default $ORCHESTRATE_ROOT or the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log store activity to stderr")
}

// Execute runs the root command
func Execute(version string) error {
	// Add subcommands here to ensure proper initialization order
	for _, cmd := range actionCommands() {
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the orchestrate version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("orchestrate %s\n", rootCmd.Version)
	},
}
