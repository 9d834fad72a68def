package main

import (
	"fmt"

	"github.com/spf13/cobra"

	cachepkg "github.com/gagank1/cheminformatics/pkg/cache/sqlite"
	"github.com/gagank1/cheminformatics/pkg/config"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the sample cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			c, err := cachepkg.Open(cfg.Sampling.DB)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			stats, err := c.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("Entries: %d\nHits:    %d\nMisses:  %d\n", stats.Entries, stats.Hits, stats.Misses)
			return nil
		},
	}

	var model string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cached samples",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			c, err := cachepkg.Open(cfg.Sampling.DB)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if err := c.Clear(model); err != nil {
				return err
			}
			if model != "" {
				fmt.Printf("Cached samples for model %s cleared.\n", model)
			} else {
				fmt.Println("All cached samples cleared.")
			}
			return nil
		},
	}
	clearCmd.Flags().StringVarP(&model, "model", "m", "", "only clear samples for this model")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "chembench.yaml", "path to config file")
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}
