package main

import (
	"errors"
	"log"

	"github.com/spf13/cobra"

	"github.com/banshee-data/growth.report/internal/monitoring"
)

var errCanceled = errors.New("run canceled")

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "growth",
		Short:         "Estimate vegetation height growth from multi-year point clouds",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetOutput(cmd.ErrOrStderr())
			monitoring.SetDebug(verbose)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newEstimateCmd(),
		newPredictCmd(),
		newShowCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)
	return root
}
