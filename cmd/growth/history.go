package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/growth.report/internal/growth/storage/sqlite"
)

func newHistoryCmd() *cobra.Command {
	var dbPath string
	var limit int
	cmd := &cobra.Command{
		Use:   "history --db FILE [RUN-ID]",
		Short: "List recorded runs or show the bands of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if len(args) == 1 {
				run, err := store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "run %s (%s), %d files, %d samples\n", run.ID, run.Status, run.FileCount, run.SampleCount)
				fmt.Fprintln(tw, "STRETCH\tVALUES\tMEAN\tSTD DEV\tLOWER\tUPPER")
				for _, b := range run.Bands {
					fmt.Fprintf(tw, "<%gm\t%d\t%.4f\t%.4f\t%.4f\t%.4f\n",
						b.Threshold, b.Count, b.Mean, b.StdDev, b.LowerPercentile, b.UpperPercentile)
				}
				return tw.Flush()
			}

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tSTATUS\tFILES\tYEARS\tSAMPLES\tERROR")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					r.ID, r.Started.UTC().Format(time.RFC3339), r.Finished.Sub(r.Started).Round(time.Millisecond),
					r.Status, r.FileCount, r.YearCount, r.SampleCount, r.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "History database")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (0 = all)")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}
