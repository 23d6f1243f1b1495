package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/spkeasy-social/spkeasy/internal/logger"
	"github.com/spkeasy-social/spkeasy/internal/telemetry"
	"github.com/spkeasy-social/spkeasy/pkg/config"
	"github.com/spkeasy-social/spkeasy/pkg/identity"
	"github.com/spkeasy-social/spkeasy/pkg/lexicon"
	"github.com/spkeasy-social/spkeasy/pkg/propagation"
	"github.com/spkeasy-social/spkeasy/pkg/serviceclient"
	"github.com/spkeasy-social/spkeasy/pkg/services/graph"
	"github.com/spkeasy-social/spkeasy/pkg/services/keys"
	"github.com/spkeasy-social/spkeasy/pkg/services/sessions"
	"github.com/spkeasy-social/spkeasy/pkg/xrpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the configured services",
	Long: `Serve every service the configuration enables, together with the job
queue workers that drain their propagation work.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/spkeasy/config.yaml.

Examples:
  # Serve with default config location
  spkeasyd serve

  # Serve with custom config file
  spkeasyd serve --config /etc/spkeasy/config.yaml

  # Serve with environment variable overrides
  SPKEASY_LOGGING_LEVEL=DEBUG spkeasyd serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "spkeasy",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "spkeasy",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	fmt.Println("spkeasy - control plane for end-to-end encrypted social content")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	// Initialize metrics FIRST (before creating stores that use metrics)
	// This ensures metrics.IsEnabled() returns true when stores are created
	metricsResult := config.InitializeMetrics(cfg)

	// Open the queue and every enabled service's store
	stores, err := config.InitializeStores(ctx, cfg, metricsResult.Queue)
	if err != nil {
		return fmt.Errorf("failed to initialize stores: %w", err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()

	// One verifier serves every listener: peer API keys for service
	// principals, the PDS allow-list and handle proofs for user tokens
	verifier := identity.NewVerifier(identity.Config{
		ServiceKeys:  cfg.Peers.APIKeys,
		AllowedHosts: cfg.Identity.AllowedHosts,
		CacheTTL:     cfg.Identity.CacheTTL,
		CacheSize:    cfg.Identity.CacheSize,
		FetchTimeout: cfg.Identity.FetchTimeout,
	})

	// Propagation handlers, one per session-owning service this process
	// serves. Each drains only the queue names addressed to its service
	// and doubles as the recryptor behind the synchronous updateKeys method.
	recryptors, err := registerPropagation(cfg, stores, metricsResult.Propagation)
	if err != nil {
		return err
	}

	// Watch the config file so allow-list and log level changes apply
	// without a restart
	watcher, err := config.NewWatcher(GetConfigFile(), func(c *config.Config) {
		verifier.SetAllowedHosts(c.Identity.AllowedHosts)
	})
	if err != nil {
		logger.Warn("Config watcher unavailable", logger.Err(err))
	} else {
		watcher.Start()
		defer watcher.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)

	// One XRPC listener per enabled service
	for _, service := range config.EnabledServices(cfg) {
		srv, err := newServiceServer(cfg, stores, verifier, metricsResult.Requests, recryptors, service)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	if metricsResult.Server != nil {
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
		g.Go(func() error {
			return serveMetrics(gctx, metricsResult.Server)
		})
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Start draining propagation jobs
	if err := stores.Queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue workers: %w", err)
	}
	defer stores.Queue.Stop(cfg.ShutdownTimeout)

	// Collect the listeners in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- g.Wait()
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Wait for the listeners to shut down gracefully
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		cancel()
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// registerPropagation builds and registers the propagation handlers for
// every enabled session-owning service, keyed by service name.
func registerPropagation(cfg *config.Config, stores *config.Stores, metrics propagation.Metrics) (map[string]*propagation.Handlers, error) {
	services := []struct {
		name string
		cfg  config.SessionServiceConfig
	}{
		{lexicon.ServicePrivateSessions, cfg.Services.PrivateSessions},
		{lexicon.ServicePrivateProfiles, cfg.Services.PrivateProfiles},
	}

	recryptors := make(map[string]*propagation.Handlers)
	for _, svc := range services {
		if !svc.cfg.Enabled {
			continue
		}

		// Trust re-checks and key material come from the peer services
		client := serviceclient.New(serviceclient.Config{
			Service: svc.name,
			URLs:    cfg.Peers.URLs,
			APIKeys: cfg.Peers.APIKeys,
			Timeout: cfg.Peers.RequestTimeout,
		})

		handlers := propagation.New(propagation.Service{
			Name:          svc.name,
			AddWindow:     svc.cfg.AddWindow,
			RotationBatch: svc.cfg.RotationBatch,
		}, stores.SessionStoreFor(svc.name), client, client, metrics)

		if err := handlers.Register(stores.Queue); err != nil {
			return nil, fmt.Errorf("failed to register %s propagation handlers: %w", svc.name, err)
		}
		recryptors[svc.name] = handlers
		logger.Info("Propagation handlers registered", logger.Service(svc.name))
	}

	return recryptors, nil
}

// newServiceServer builds the XRPC server for one enabled service: mux,
// method registration, and listener configuration.
func newServiceServer(cfg *config.Config, stores *config.Stores, verifier xrpc.TokenVerifier, requestMetrics xrpc.Metrics, recryptors map[string]*propagation.Handlers, service string) (*xrpc.Server, error) {
	mux := xrpc.NewMux(xrpc.MuxConfig{
		Service:  service,
		Verifier: verifier,
		Health:   stores,
		Metrics:  requestMetrics,
	})

	var serverCfg xrpc.ServerConfig
	switch service {
	case lexicon.ServiceKeys:
		keys.New(stores.Keys).Register(mux)
		serverCfg = cfg.Services.Keys.Server

	case lexicon.ServiceTrust:
		graph.New(stores.Trust).Register(mux)
		serverCfg = cfg.Services.Trust.Server

	case lexicon.ServicePrivateSessions:
		if err := sessions.New(service, stores.PrivateSessions, recryptors[service]).Register(mux); err != nil {
			return nil, err
		}
		serverCfg = cfg.Services.PrivateSessions.Server

	case lexicon.ServicePrivateProfiles:
		if err := sessions.New(service, stores.PrivateProfiles, recryptors[service]).Register(mux); err != nil {
			return nil, err
		}
		serverCfg = cfg.Services.PrivateProfiles.Server

	default:
		return nil, fmt.Errorf("unknown service %q", service)
	}

	return xrpc.NewServer(serverCfg, service, mux), nil
}

// serveMetrics runs the Prometheus endpoint until ctx is cancelled.
func serveMetrics(ctx context.Context, srv *http.Server) error {
	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}
