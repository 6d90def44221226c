// Package config loads, defaults, validates, and saves the webauthd
// configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/webauthd/pkg/api"
)

// Config represents the webauthd configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (WEBAUTHD_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Server contains the provisioning HTTP server configuration
	Server api.Config `mapstructure:"server" yaml:"server"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Policy contains the identity validation policy
	Policy PolicyConfig `mapstructure:"policy" yaml:"policy"`

	// Tools contains the external authentication tool configuration
	Tools ToolsConfig `mapstructure:"tools" yaml:"tools"`

	// Session contains the flash-notice session configuration
	Session SessionConfig `mapstructure:"session" yaml:"session"`

	// Coda contains the optional secondary backend configuration
	Coda CodaConfig `mapstructure:"coda" yaml:"coda"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// MetricsConfig configures Prometheus metrics.
// When Enabled is false, no metrics are collected and /metrics is not routed.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// PolicyConfig contains the identity validation policy.
type PolicyConfig struct {
	// UserBlocklist lists usernames that may never be provisioned.
	// Default: ["root"]
	UserBlocklist []string `mapstructure:"user_blocklist" yaml:"user_blocklist"`

	// RealmAllowlist, when non-empty, restricts realms to this set
	RealmAllowlist []string `mapstructure:"realm_allowlist" yaml:"realm_allowlist,omitempty"`

	// RealmBlocklist lists realms that are rejected outright
	RealmBlocklist []string `mapstructure:"realm_blocklist" yaml:"realm_blocklist,omitempty"`

	// MinUserID is the lowest uid of ordinary accounts; anything below is a
	// reserved system account. Default: 1000
	MinUserID uint32 `mapstructure:"min_user_id" yaml:"min_user_id"`

	// PasswdPath is the account database consulted for local accounts.
	// Default: /etc/passwd
	PasswdPath string `mapstructure:"passwd_path" yaml:"passwd_path"`
}

// ToolsConfig contains the external authentication tool configuration.
// Empty paths mean "resolve the bare tool name on PATH".
type ToolsConfig struct {
	// Kinit is the Kerberos ticket tool. Default: kinit
	Kinit string `mapstructure:"kinit" yaml:"kinit"`

	// Smbpasswd is the local SMB account tool. Default: smbpasswd
	Smbpasswd string `mapstructure:"smbpasswd" yaml:"smbpasswd"`

	// Clog is the Coda token tool. Default: clog
	Clog string `mapstructure:"clog" yaml:"clog"`

	// Timeout caps one tool invocation. Default: 30s
	Timeout time.Duration `mapstructure:"timeout" validate:"omitempty,gt=0" yaml:"timeout"`

	// CacheDir holds request-scoped temporary credential caches.
	// Default: the system temp directory
	CacheDir string `mapstructure:"cache_dir" yaml:"cache_dir,omitempty"`

	// InstallDir is where per-uid credential caches are placed on the
	// fallback path. Default: /tmp
	InstallDir string `mapstructure:"install_dir" yaml:"install_dir"`

	// VerifyCache enables parsing the obtained credential cache and checking
	// its client principal against the authenticated identifier.
	VerifyCache bool `mapstructure:"verify_cache" yaml:"verify_cache"`
}

// SessionConfig contains the flash-notice session configuration.
type SessionConfig struct {
	// SecretPath is the signing-secret file. Created with a random token on
	// first start when missing. Default: <config dir>/secret
	SecretPath string `mapstructure:"secret_path" yaml:"secret_path"`
}

// CodaConfig contains the optional secondary backend configuration.
type CodaConfig struct {
	// Enabled controls the secondary backend. When unset, the backend is
	// enabled iff the clog tool resolves on PATH.
	Enabled *bool `mapstructure:"enabled" yaml:"enabled,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (WEBAUTHD_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the config
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  webauthd init\n\n"+
				"Or specify a custom config file:\n"+
				"  webauthd <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  webauthd init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Owner-only: the policy lists and tool paths decide who can become whom.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: WEBAUTHD_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("WEBAUTHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings like "30s", "5m", "1h" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "webauthd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "webauthd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the init command).
func GetConfigDir() string {
	return getConfigDir()
}
