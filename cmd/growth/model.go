package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/growth.report/internal/config"
	"github.com/banshee-data/growth.report/internal/fsutil"
	"github.com/banshee-data/growth.report/internal/growth"
)

type modelOptions struct {
	configPath string
	modelPath  string
}

func (o *modelOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.modelPath, "model", "", "Model file path")
	cmd.Flags().StringVar(&o.configPath, "config", "", "Config file defining the stretches")
	_ = cmd.MarkFlagRequired("model")
}

func (o *modelOptions) load() (*growth.Model, error) {
	cfg := config.EmptyGrowthConfig()
	if o.configPath != "" {
		loaded, err := config.LoadGrowthConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return growth.LoadModel(fsutil.OSFileSystem{}, o.modelPath, growth.Stretches(cfg.GetStretches()))
}

func newShowCmd() *cobra.Command {
	o := &modelOptions{}
	cmd := &cobra.Command{
		Use:   "show --model FILE",
		Short: "Print the statistics of a model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := o.load()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STRETCH\tVALUES\tMEAN\tSTD DEV\tLOWER\tUPPER")
			for i, b := range m.Bands {
				if b.Count == 0 {
					fmt.Fprintf(tw, "%s\t0\t-\t-\t-\t-\n", m.Stretches.Label(i))
					continue
				}
				fmt.Fprintf(tw, "%s\t%d\t%.4f\t%.4f\t%.4f\t%.4f\n",
					m.Stretches.Label(i), b.Count, b.Mean, b.StdDev, b.LowerPercentile, b.UpperPercentile)
			}
			return tw.Flush()
		},
	}
	o.register(cmd)
	return cmd
}

func newPredictCmd() *cobra.Command {
	o := &modelOptions{}
	var height, years float64
	cmd := &cobra.Command{
		Use:   "predict --model FILE --height METRES --years N",
		Short: "Project a vegetation height forward with a model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := o.load()
			if err != nil {
				return err
			}
			p, err := m.Predict(height, years)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "height after %g years: %.3f m (range %.3f - %.3f m)\n",
				years, p.Height, p.Low, p.High)
			return nil
		},
	}
	o.register(cmd)
	cmd.Flags().Float64Var(&height, "height", 0, "Current height in metres")
	cmd.Flags().Float64Var(&years, "years", 1, "Years to project")
	_ = cmd.MarkFlagRequired("height")
	return cmd
}
