package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/webauthd/internal/logger"
	"github.com/marmos91/webauthd/internal/telemetry"
	"github.com/marmos91/webauthd/pkg/api"
	"github.com/marmos91/webauthd/pkg/api/session"
	"github.com/marmos91/webauthd/pkg/config"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the provisioning server",
	Long: `Start the webauthd provisioning server with the specified configuration.

The server exposes the two-step web flow: the user enters a local username,
then authenticates with their Kerberos credentials; webauthd creates or
updates the local SMB account, places a credential cache for it, and
optionally obtains Coda tokens.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/webauthd/config.yaml.

Examples:
  # Start the server
  webauthd start

  # Start with custom config file
  webauthd start --config /etc/webauthd/config.yaml

  # Start with environment variable overrides
  WEBAUTHD_LOGGING_LEVEL=DEBUG webauthd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "webauthd",
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

	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}

	rt := buildRuntime(cfg)
	if rt.orch.SecondaryEnabled() {
		logger.Info("Coda backend enabled", "clog", cfg.Tools.Clog)
	} else {
		logger.Info("Coda backend disabled")
	}
	if rt.registry != nil {
		logger.Info("Metrics enabled", "path", "/metrics")
	} else {
		logger.Info("Metrics collection disabled")
	}

	secret, err := session.LoadOrCreateSecret(cfg.Session.SecretPath)
	if err != nil {
		return fmt.Errorf("failed to load session secret: %w", err)
	}

	deps := api.RouterDeps{
		Provisioner: rt.orch,
		Validator:   rt.validator,
		Settings:    rt.settings,
		Accounts:    rt.accounts,
		Flash:       session.NewFlash(secret),
	}
	if rt.registry != nil {
		deps.Metrics = rt.registry
	}
	router := api.NewRouter(deps)
	server := api.NewServer(cfg.Server, router)

	// Start server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.", "port", server.Port())

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}
