package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/execgate/execgate/bootstrap"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the execution gateway server",
	Long: `Start the execgate server.

The server will:
  - Load configuration from execgate.yaml (or --config)
  - Connect the configured cache and quota backends
  - Serve execution history with per-tier caching and quotas

Environment variables:
  EXECGATE_SERVER_HOST     - Bind host (default: 0.0.0.0)
  EXECGATE_SERVER_PORT     - Server port (default: 8080)
  EXECGATE_REDIS_ADDR      - Redis address for redis backends
  EXECGATE_DATABASE_DSN    - SQLite path for the sqlite backend
  EXECGATE_LOG_LEVEL       - Log level: debug, info, warn, error
  EXECGATE_LOG_FORMAT      - Log format: json or console

Examples:
  execgate serve
  execgate serve --config /etc/execgate/config.yaml
  execgate serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.New(cfgFile, hotReload)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
