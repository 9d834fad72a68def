package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gagank1/cheminformatics/pkg/bench"
	sqlitecache "github.com/gagank1/cheminformatics/pkg/cache/sqlite"
	"github.com/gagank1/cheminformatics/pkg/config"
	"github.com/gagank1/cheminformatics/pkg/inference"
	"github.com/gagank1/cheminformatics/pkg/output"
	"github.com/gagank1/cheminformatics/pkg/sampler"
)

func newRunCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark against a model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			model, err := inference.NewClient(cfg.Model.Name, cfg.Model.URL, cfg.Model.RadiusScale)
			if err != nil {
				return fmt.Errorf("init model client: %w", err)
			}

			cache, err := sqlitecache.Open(cfg.Sampling.DB)
			if err != nil {
				return fmt.Errorf("init sample cache: %w", err)
			}
			defer func() { _ = cache.Close() }()

			history, err := bench.OpenHistory(cfg.Sampling.DB)
			if err != nil {
				return fmt.Errorf("init run history: %w", err)
			}
			defer func() { _ = history.Close() }()

			csvOut, err := output.NewCSVWriter(filepath.Join(cfg.Output.Path, "benchmark_metrics.csv"))
			if err != nil {
				return err
			}
			jsonOut, err := output.NewJSONWriter(filepath.Join(cfg.Output.Path, "benchmark_metrics.jsonl"))
			if err != nil {
				csvOut.Close()
				return err
			}
			out := output.Multi{csvOut, jsonOut}
			defer func() { _ = out.Close() }()

			s := sampler.New(model, cache, sampler.Options{
				ConcurrentRequests: cfg.Sampling.ConcurrentRequests,
				Retries:            cfg.Sampling.Retries,
				Logger:             log,
			})

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner := bench.New(cfg, model, s, out, history, log)
			rep, err := runner.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Run %s finished in %s: %d metrics, %d failed.\n",
				rep.RunID, rep.Elapsed.Round(time.Millisecond), len(rep.Results), rep.Failed())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "chembench.yaml", "path to config file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}
