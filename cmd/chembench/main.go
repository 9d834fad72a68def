package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "chembench",
		Short:   "Chembench — benchmark engine for generative molecular models",
		Version: version,
	}

	root.AddCommand(
		newRunCmd(),
		newRunsCmd(),
		newCacheCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
