package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/safezone/internal/config"
	"github.com/oshokin/safezone/internal/domain/geofence"
	"github.com/oshokin/safezone/internal/service/simulator"
	"github.com/oshokin/safezone/internal/version"
)

var (
	// cfgPath stores the configuration file path.
	cfgPath string
	// opts collects the walk settings bound to flags.
	opts simulator.Options
	// lat and lng override the starting point.
	lat, lng float64

	// rootCmd represents the base command for the virtual cow.
	rootCmd = &cobra.Command{
		Use:   "safezone-simulator <entity-id> [server-address]",
		Short: "Walk a virtual cow out of its fence and back.",
		Long: `Assigns a virtual cow to a farm and streams simulator positions for it.

The cow starts at the centroid of the farm's static fence, or at --lat/--lng,
walks north in fixed steps until it is well past the boundary, then walks back.
With --loop the walk repeats until interrupted.

This is used to exercise zone classification and alarm escalation without collars.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			opts.ConfigPath = cfgPath
			opts.EntityID = args[0]

			if len(args) > 1 {
				opts.ServerAddress = args[1]
			}

			if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
				opts.Origin = &geofence.Point{Lat: lat, Lng: lng}
			}

			return simulator.Run(ctx, &opts)
		},
	}
)

// Execute runs the safezone-simulator CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()

	flags.StringVarP(&cfgPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVarP(&opts.FarmID, "farm", "f", "", "farm the cow is assigned to")
	flags.StringVarP(&opts.OwnerID, "owner", "o", "", "owner receiving alarms, defaults to user@host")
	flags.StringVarP(&opts.Name, "name", "n", "", "display name used in notifications")
	flags.Float64Var(&lat, "lat", 0, "starting latitude")
	flags.Float64Var(&lng, "lng", 0, "starting longitude")
	flags.Float64Var(&opts.Step, "step", simulator.DefaultStep, "meters between two positions")
	flags.Float64Var(&opts.Distance, "distance", simulator.DefaultDistance, "meters walked before turning back")
	flags.DurationVarP(&opts.Interval, "interval", "i", simulator.DefaultInterval, "delay between two positions")
	flags.BoolVar(&opts.Loop, "loop", false, "repeat the walk until interrupted")

	err := rootCmd.MarkFlagRequired("farm")
	if err != nil {
		panic(err)
	}
}
