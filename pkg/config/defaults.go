package config

import (
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/webauthd/pkg/backend"
	"github.com/marmos91/webauthd/pkg/identity"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	cfg.Server.ApplyDefaults()
	applyPolicyDefaults(&cfg.Policy)
	applyToolsDefaults(&cfg.Tools)
	applySessionDefaults(&cfg.Session)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyPolicyDefaults(cfg *PolicyConfig) {
	if cfg.UserBlocklist == nil {
		cfg.UserBlocklist = []string{"root"}
	}
	if cfg.MinUserID == 0 {
		cfg.MinUserID = 1000
	}
	if cfg.PasswdPath == "" {
		cfg.PasswdPath = identity.DefaultPasswdPath
	}
}

func applyToolsDefaults(cfg *ToolsConfig) {
	if cfg.Kinit == "" {
		cfg.Kinit = "kinit"
	}
	if cfg.Smbpasswd == "" {
		cfg.Smbpasswd = "smbpasswd"
	}
	if cfg.Clog == "" {
		cfg.Clog = "clog"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = backend.DefaultTimeout
	}
	if cfg.InstallDir == "" {
		cfg.InstallDir = "/tmp"
	}
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.SecretPath == "" {
		cfg.SecretPath = filepath.Join(getConfigDir(), "secret")
	}
}

// CodaEnabled resolves whether the secondary backend is active: an explicit
// setting wins, otherwise the presence of the clog tool decides.
func (c *Config) CodaEnabled() bool {
	if c.Coda.Enabled != nil {
		return *c.Coda.Enabled
	}
	_, err := exec.LookPath(c.Tools.Clog)
	return err == nil
}

// IdentityPolicy converts the policy section into the identity package form.
func (c *Config) IdentityPolicy() identity.Policy {
	return identity.Policy{
		UserBlocklist:  c.Policy.UserBlocklist,
		RealmAllowlist: c.Policy.RealmAllowlist,
		RealmBlocklist: c.Policy.RealmBlocklist,
		MinUserID:      c.Policy.MinUserID,
	}
}

// GetDefaultConfig returns a fully defaulted configuration.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
