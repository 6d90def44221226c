package commands

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/webauthd/internal/logger"
	"github.com/marmos91/webauthd/pkg/backend"
	"github.com/marmos91/webauthd/pkg/config"
	"github.com/marmos91/webauthd/pkg/identity"
	prommetrics "github.com/marmos91/webauthd/pkg/metrics/prometheus"
	"github.com/marmos91/webauthd/pkg/provision"
	"github.com/marmos91/webauthd/pkg/settings"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// runtime holds the wired provisioning collaborators shared by the server
// and the interactive commands.
type runtime struct {
	accounts  identity.AccountStore
	validator *identity.Validator
	settings  *settings.Store
	orch      *provision.Orchestrator

	// registry is nil when metrics are disabled.
	registry *prometheus.Registry
}

// buildRuntime wires the identity store, backends, and orchestrator from
// configuration.
func buildRuntime(cfg *config.Config) *runtime {
	accounts := identity.NewPasswdStore(cfg.Policy.PasswdPath)
	validator := identity.NewValidator(cfg.IdentityPolicy(), accounts)
	settingsStore := settings.NewStore(accounts)

	runner := &backend.ExecRunner{Timeout: cfg.Tools.Timeout}

	krb5 := backend.NewKrb5Backend(runner, backend.Krb5Config{
		Kinit:       cfg.Tools.Kinit,
		CacheDir:    cfg.Tools.CacheDir,
		InstallDir:  cfg.Tools.InstallDir,
		VerifyCache: cfg.Tools.VerifyCache,
	})
	smb := backend.NewSmbBackend(runner, cfg.Tools.Smbpasswd, accounts)

	var secondary backend.TokenIssuer
	if cfg.CodaEnabled() {
		secondary = backend.NewCodaBackend(runner, cfg.Tools.Clog)
	}

	var registry *prometheus.Registry
	var metrics provision.Metrics
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		metrics = prommetrics.NewProvisionMetrics(registry)
	}

	orch := provision.New(provision.Config{
		Validator: validator,
		Accounts:  accounts,
		Settings:  settingsStore,
		Primary:   krb5,
		Local:     smb,
		Secondary: secondary,
		Metrics:   metrics,
	})

	return &runtime{
		accounts:  accounts,
		validator: validator,
		settings:  settingsStore,
		orch:      orch,
		registry:  registry,
	}
}
