package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "execgate",
	Short: "Caching and quota gateway for workflow execution history",
	Long: `Execgate sits between clients and their workflow automation
instances, mediating access to execution history.

It caches responses per plan tier, enforces daily activity quotas and
per-minute rate limits, and collapses concurrent fetches for the same
data into a single upstream request.

Quick start:
  execgate serve      # Start the gateway
  execgate validate   # Validate configuration`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "execgate.yaml", "config file path")
}
