package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"

	grpcapi "github.com/oshokin/safezone/internal/api/grpc/geofence"
	"github.com/oshokin/safezone/internal/api/http/console"
	"github.com/oshokin/safezone/internal/config"
	"github.com/oshokin/safezone/internal/logger"
	pb "github.com/oshokin/safezone/internal/pb/v1"
	"github.com/oshokin/safezone/internal/service/collar"
)

// Options controls the safezone-server process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// HTTPAddress provides an optional listen address override for the console HTTP API.
	HTTPAddress string
	// StateFile overrides the JSON file of the file store.
	StateFile string
}

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// shutdownTimeout bounds the HTTP server shutdown.
const shutdownTimeout = 5 * time.Second

// Run starts the engine with its transports and background loops, and blocks
// until ctx is canceled or a component fails.
func Run(ctx context.Context, opts *Options) error {
	// Load configuration first to get server settings.
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// The named logger is derived after the configured one replaces the default.
	logger.Configure(settings.LogLevel, settings.LogFormat)
	ctx = logger.WithName(ctx, "safezone-server")

	// Command line options override the settings file.
	if opts.StateFile != "" {
		settings.Store.Path = opts.StateFile
	}

	httpAddress := settings.HTTPAddress
	if opts.HTTPAddress != "" {
		httpAddress = opts.HTTPAddress
	}

	// Determine listen address: CLI argument overrides config port extraction.
	listenAddress, err := resolveListenAddress(settings.ServerAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	// The file store has a single writer.
	if settings.Store.Driver == config.StoreFile {
		if err = ensureSingleInstance(ctx); err != nil {
			return err
		}
	}

	// Wire storage, fences, notifications and the engine.
	deps, err := newStack(ctx, settings)
	if err != nil {
		return err
	}

	defer deps.close(ctx)

	// Setup TCP listener for gRPC server.
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	grpcServer := grpc.NewServer()
	pb.RegisterGeofenceServiceServer(grpcServer, grpcapi.NewServer(deps.engine))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		errs = make(chan error, 8)
	)

	// spawn runs a component; the first failure stops the others.
	spawn := func(name string, run func(context.Context) error) {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if runErr := run(ctx); runErr != nil {
				errs <- fmt.Errorf("%s: %w", name, runErr)

				cancel()
			}
		}()
	}

	spawn("notification queue", deps.queue.Run)
	spawn("monitor", func(ctx context.Context) error {
		return deps.engine.RunMonitor(ctx, deps.monitor)
	})
	spawn("sweeper", func(ctx context.Context) error {
		return deps.engine.RunSweeper(ctx, deps.monitor)
	})

	if deps.broker != nil {
		listener := collar.NewListener(deps.engine, deps.broker, settings.MQTT.PositionTopic)
		spawn("collar listener", listener.Run)
	}

	if httpAddress != "" {
		spawn("console api", func(ctx context.Context) error {
			return serveHTTP(ctx, httpAddress, console.NewRouter(deps.engine, settings.Timeout))
		})
	}

	logger.InfoKV(ctx, "Safezone server listening",
		"listen_address", listenAddress,
		"http_address", httpAddress,
		"store", settings.Store.Driver,
		"fences", settings.Fences.Source)

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		grpcServer.GracefulStop()
		close(done)
	}()

	if err = grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		cancel()

		err = fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	wg.Wait()
	close(errs)

	logger.Info(ctx, "Safezone server stopped")

	if err != nil {
		return err
	}

	return <-errs
}

// serveHTTP runs an HTTP server until ctx is done.
func serveHTTP(ctx context.Context, address string, handler http.Handler) error {
	server := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	logger.InfoKV(ctx, "Console API listening", "http_address", address)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// resolveListenAddress determines the listen address for the gRPC server.
// If override is provided, uses it directly. Otherwise extracts port from configAddr.
// Returns appropriate listen address (e.g., ":8080" for port-only binding).
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	// Bind on all interfaces.
	return ":" + port, nil
}
