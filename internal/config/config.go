// ABOUTME: Configuration loading and parsing for tower-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Default values applied when the corresponding setting is absent.
const (
	DefaultHTTPAddr     = "0.0.0.0:8080"
	DefaultDriver       = "sqlite"
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxRetries   = 5
	DefaultRetryBackoff = 20 * time.Millisecond
	DefaultPoolSize     = 64
	DefaultIdleTimeout  = 5 * time.Minute
	DefaultTokenTTL     = 24 * time.Hour
	DefaultMetricsPath  = "/metrics"

	minJWTSecretLen = 32
)

// EnvDBPath names the environment variable that overrides database.path.
const EnvDBPath = "TOWER_DB_PATH"

// Config represents the complete tower-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Tenants  TenantsConfig  `yaml:"tenants" toml:"tenants"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// DatabaseConfig holds the central registry database location
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// TenantsConfig controls where tenant stores live and how they are accessed.
type TenantsConfig struct {
	Root   string `yaml:"root" toml:"root"`
	Driver string `yaml:"driver" toml:"driver"` // "sqlite" (pure Go) or "sqlite3" (cgo)

	// PoolSize is the maximum number of tenant stores kept open. Zero opens
	// and closes a store on every call.
	PoolSize   int `yaml:"pool_size" toml:"pool_size"`
	MaxRetries int `yaml:"max_retries" toml:"max_retries"`

	BusyTimeout  time.Duration `yaml:"-" toml:"-"`
	RetryBackoff time.Duration `yaml:"-" toml:"-"`
	IdleTimeout  time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	BusyTimeoutRaw  string `yaml:"busy_timeout" toml:"busy_timeout"`
	RetryBackoffRaw string `yaml:"retry_backoff" toml:"retry_backoff"`
	IdleTimeoutRaw  string `yaml:"idle_timeout" toml:"idle_timeout"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenTTL    time.Duration `yaml:"-" toml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl" toml:"token_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	// pool_size: 0 and max_retries: 0 are meaningful, so their defaults are
	// set before decoding.
	cfg := Config{Tenants: TenantsConfig{
		PoolSize:   DefaultPoolSize,
		MaxRetries: DefaultMaxRetries,
	}}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// The override lands before defaults so tenants.root follows it.
	if envPath := os.Getenv(EnvDBPath); envPath != "" {
		cfg.Database.Path = envPath
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in unset optional fields.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Tenants.Root == "" && c.Database.Path != "" {
		c.Tenants.Root = filepath.Join(filepath.Dir(c.Database.Path), "tenants")
	}
	if c.Tenants.Driver == "" {
		c.Tenants.Driver = DefaultDriver
	}
	if c.Tenants.BusyTimeout == 0 {
		c.Tenants.BusyTimeout = DefaultBusyTimeout
	}
	if c.Tenants.RetryBackoff == 0 {
		c.Tenants.RetryBackoff = DefaultRetryBackoff
	}
	if c.Tenants.IdleTimeout == 0 {
		c.Tenants.IdleTimeout = DefaultIdleTimeout
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Tenants.Root == "" {
		return fmt.Errorf("tenants.root is required")
	}

	switch c.Tenants.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("tenants.driver must be \"sqlite\" or \"sqlite3\", got %q", c.Tenants.Driver)
	}

	if c.Tenants.PoolSize < 0 {
		return fmt.Errorf("tenants.pool_size must not be negative")
	}
	if c.Tenants.MaxRetries < 0 {
		return fmt.Errorf("tenants.max_retries must not be negative")
	}

	if len(c.Auth.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", minJWTSecretLen)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"tenants.busy_timeout", cfg.Tenants.BusyTimeoutRaw, &cfg.Tenants.BusyTimeout},
		{"tenants.retry_backoff", cfg.Tenants.RetryBackoffRaw, &cfg.Tenants.RetryBackoff},
		{"tenants.idle_timeout", cfg.Tenants.IdleTimeoutRaw, &cfg.Tenants.IdleTimeout},
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
