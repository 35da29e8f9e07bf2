package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/safezone/internal/config"
	"github.com/oshokin/safezone/internal/service/console"
	"github.com/oshokin/safezone/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// ownerID overrides the detected operator identity.
	ownerID string
	// interval is the delay between heartbeats.
	interval time.Duration

	// rootCmd represents the base command for an operator console session.
	rootCmd = &cobra.Command{
		Use:   "safezone-console [server-address]",
		Short: "Hold a live console session and watch your animals.",
		Long: `Opens an operator console session against the safezone server.

While the console runs it heartbeats for every entity of its owner, so the
server's background monitor leaves those entities alone, and it requests the
alarms their zones call for. Entity updates are streamed and logged.
On exit the session is disconnected and the background monitor takes over.

The owner defaults to user@host of the current OS account.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use server address argument if provided, otherwise rely on config.
			var serverAddress string
			if len(args) > 0 {
				serverAddress = args[0]
			}

			return console.Run(ctx, &console.Options{
				ConfigPath:        configPath,
				ServerAddress:     serverAddress,
				OwnerID:           ownerID,
				HeartbeatInterval: interval,
			})
		},
	}
)

// Execute runs the safezone-console CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&ownerID, "owner", "o", "", "operator identity, defaults to user@host")
	rootCmd.Flags().
		DurationVarP(&interval, "interval", "i", console.DefaultHeartbeatInterval, "delay between heartbeats")
}
