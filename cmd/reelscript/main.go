package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reelscript",
		Short: "Reel-to-script service",
	}
	rootCmd.AddCommand(newServeCmd(), newWorkerCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
