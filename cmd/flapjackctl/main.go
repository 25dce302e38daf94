// Command flapjackctl is an operator CLI for a flapjack-node's experiment
// lifecycle and write-pause controls.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiFlag    string
	tenantFlag string
	rootCmd    = &cobra.Command{
		Use:   "flapjackctl",
		Short: "CLI client for the flapjack-node REST API",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:8080", "flapjack-node base URL")
	rootCmd.PersistentFlags().StringVarP(&tenantFlag, "tenant", "t", "", "tenant ID (required for pause/resume commands)")

	rootCmd.AddCommand(
		newExperimentCreateCmd(),
		newExperimentListCmd(),
		newExperimentGetCmd(),
		newExperimentStartCmd(),
		newExperimentStopCmd(),
		newExperimentConcludeCmd(),
		newExperimentResultsCmd(),
		newPauseCmd(),
		newResumeCmd(),
		newStatusCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
