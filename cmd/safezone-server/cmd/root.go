package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/safezone/internal/config"
	"github.com/oshokin/safezone/internal/service/server"
	"github.com/oshokin/safezone/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// httpAddress overrides the console HTTP listen address.
	httpAddress string
	// stateFile overrides the JSON file of the file store.
	stateFile string

	// rootCmd represents the base command for running the engine.
	rootCmd = &cobra.Command{
		Use:   "safezone-server [listen-address]",
		Short: "Run the geofence engine with its gRPC and HTTP APIs.",
		Long: `Starts the geofence engine that classifies positions and escalates alarms.

The gRPC API listens on the specified address or on the port of server_addr from
the configuration file. The console HTTP API starts when http_addr is set or
--http is given. Collar positions are consumed from MQTT when a broker is configured.

The background monitor re-evaluates entities whose owner has no live console,
so dwell-driven alarms fire even when no positions arrive.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				HTTPAddress:   httpAddress,
				StateFile:     stateFile,
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the safezone-server CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&httpAddress, "http", "", "console HTTP listen address, overrides http_addr")
	rootCmd.Flags().
		StringVarP(&stateFile, "state-file", "s", "", "path of the file store, overrides store.path")
}
