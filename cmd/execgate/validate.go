package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/execgate/execgate/config"
)

const (
	checkMark = "✓"
	crossMark = "✗"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the execgate configuration file.

Checks:
  - YAML syntax is valid
  - Selected backends have the settings they need
  - Plan policies are well-formed

Examples:
  execgate validate
  execgate validate --config /etc/execgate/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating %s...\n\n", cfgFile)

	// Check file exists
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Printf("  %s Config file exists\n", checkMark)

	// Load and validate config
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Printf("  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Printf("  %s Config valid\n", checkMark)

	table, err := cfg.PlanTable()
	if err != nil {
		fmt.Printf("  %s Plan policies valid\n", crossMark)
		return fmt.Errorf("plan error: %w", err)
	}
	fmt.Printf("  %s Plan policies valid\n", checkMark)

	fmt.Println("\nConfiguration valid")
	fmt.Printf("  Listen:         %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Cache backend:  %s\n", orDefault(cfg.Cache.Backend, "memory"))
	fmt.Printf("  Quota backend:  %s\n", orDefault(cfg.Quota.Backend, "memory"))
	fmt.Printf("  Plans:          %d\n", len(table.Tiers()))
	fmt.Printf("  Instances:      %d\n", len(cfg.Instances))
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
