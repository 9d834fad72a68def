package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gagank1/cheminformatics/pkg/bench"
	"github.com/gagank1/cheminformatics/pkg/config"
)

func newRunsCmd() *cobra.Command {
	var (
		configPath string
		model      string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List past benchmark runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			history, err := bench.OpenHistory(cfg.Sampling.DB)
			if err != nil {
				return err
			}
			defer func() { _ = history.Close() }()

			runs, err := history.List(context.Background(), model, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tMODEL\tSTARTED\tDURATION\tMETRICS\tFAILED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
					r.RunID, r.Model,
					r.StartedAt.Format("2006-01-02T15:04:05"),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
					r.Metrics, r.Failed)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "chembench.yaml", "path to config file")
	cmd.Flags().StringVarP(&model, "model", "m", "", "only show runs for this model")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of runs to show")
	return cmd
}
