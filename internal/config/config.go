// ABOUTME: Configuration loading and parsing for gatekeeper
// ABOUTME: Supports YAML or TOML files with ${VAR} expansion, GATEKEEPER_* overrides and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/2389/gatekeeper/internal/dispatch"
	"github.com/2389/gatekeeper/internal/route"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GATEKEEPER_"

// EnvConfigPath names the environment variable holding an explicit config path.
const EnvConfigPath = EnvPrefix + "CONFIG"

// Session backends
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config represents the complete gatekeeper configuration
type Config struct {
	API     APIConfig          `yaml:"api" toml:"api"`
	Session SessionConfig      `yaml:"session" toml:"session"`
	Guard   GuardConfig        `yaml:"guard" toml:"guard"`
	Logging LoggingConfig      `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig      `yaml:"metrics" toml:"metrics"`
	Routes  []route.Descriptor `yaml:"routes" toml:"routes"`
}

// APIConfig describes the backend the dispatcher talks to
type APIConfig struct {
	BaseURL         string        `yaml:"base_url" toml:"base_url"`
	Timeout         time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw      string        `yaml:"timeout" toml:"timeout"`
	AuthPrecedence  string        `yaml:"auth_precedence" toml:"auth_precedence"`
	RequestIDHeader string        `yaml:"request_id_header" toml:"request_id_header"`
}

// SessionConfig selects where the token and role are kept
type SessionConfig struct {
	Backend     string `yaml:"backend" toml:"backend"`
	Path        string `yaml:"path" toml:"path"` // file or sqlite location
	RedisURL    string `yaml:"redis_url" toml:"redis_url"`
	RedisPrefix string `yaml:"redis_prefix" toml:"redis_prefix"`
}

// GuardConfig maps roles to their landing routes
type GuardConfig struct {
	LoginRoute  string            `yaml:"login_route" toml:"login_route"`
	Homes       map[string]string `yaml:"homes" toml:"homes"`
	DefaultHome string            `yaml:"default_home" toml:"default_home"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Namespace string `yaml:"namespace" toml:"namespace"`
}

// envOverrides lists the GATEKEEPER_* variables. Unset variables leave the
// file value alone.
type envOverrides struct {
	APIBaseURL      string `env:"API_BASE_URL"`
	APITimeout      string `env:"API_TIMEOUT"`
	AuthPrecedence  string `env:"AUTH_PRECEDENCE"`
	RequestIDHeader string `env:"REQUEST_ID_HEADER"`
	SessionBackend  string `env:"SESSION_BACKEND"`
	SessionPath     string `env:"SESSION_PATH"`
	RedisURL        string `env:"REDIS_URL"`
	RedisPrefix     string `env:"REDIS_PREFIX"`
	LogLevel        string `env:"LOG_LEVEL"`
	LogFormat       string `env:"LOG_FORMAT"`
	MetricsEnabled  string `env:"METRICS_ENABLED"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are TOML, everything else is YAML. Environment variables
// in the format ${VAR_NAME} are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault loads the file at DefaultPath, or the defaults plus environment
// overrides when that file does not exist.
func LoadDefault() (*Config, error) {
	path := DefaultPath()
	if path != "" {
		cfg, err := Load(path)
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			return cfg, err
		}
		if os.Getenv(EnvConfigPath) != "" {
			// An explicit path must exist
			return nil, err
		}
	}

	cfg := &Config{}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPath returns GATEKEEPER_CONFIG, else config.yaml under
// $XDG_CONFIG_HOME/gatekeeper, else under ~/.config/gatekeeper.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gatekeeper", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gatekeeper", "config.yaml")
}

// finish applies environment overrides and defaults, parses durations and validates.
func (c *Config) finish() error {
	if err := c.applyEnv(); err != nil {
		return err
	}
	c.applyDefaults()

	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	override(&c.API.BaseURL, o.APIBaseURL)
	override(&c.API.TimeoutRaw, o.APITimeout)
	override(&c.API.AuthPrecedence, o.AuthPrecedence)
	override(&c.API.RequestIDHeader, o.RequestIDHeader)
	override(&c.Session.Backend, o.SessionBackend)
	override(&c.Session.Path, o.SessionPath)
	override(&c.Session.RedisURL, o.RedisURL)
	override(&c.Session.RedisPrefix, o.RedisPrefix)
	override(&c.Logging.Level, o.LogLevel)
	override(&c.Logging.Format, o.LogFormat)

	if o.MetricsEnabled != "" {
		enabled, err := strconv.ParseBool(o.MetricsEnabled)
		if err != nil {
			return fmt.Errorf("parse env: %sMETRICS_ENABLED: %w", EnvPrefix, err)
		}
		c.Metrics.Enabled = enabled
	}
	return nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = dispatch.DefaultBaseURL
	}
	if c.API.TimeoutRaw == "" && c.API.Timeout == 0 {
		c.API.Timeout = dispatch.DefaultTimeout
	}
	if c.API.AuthPrecedence == "" {
		c.API.AuthPrecedence = dispatch.PrecedenceSession.String()
	}
	if c.Session.Backend == "" {
		c.Session.Backend = BackendFile
	}
	if c.Session.RedisPrefix == "" {
		c.Session.RedisPrefix = "gatekeeper"
	}
	if c.Guard.LoginRoute == "" {
		c.Guard.LoginRoute = route.NameLogin
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "gatekeeper"
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.API.TimeoutRaw == "" {
		return nil
	}
	d, err := time.ParseDuration(cfg.API.TimeoutRaw)
	if err != nil {
		return fmt.Errorf("parsing api.timeout %q: %w", cfg.API.TimeoutRaw, err)
	}
	cfg.API.Timeout = d
	return nil
}
