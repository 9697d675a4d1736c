// Package config loads and validates SDK configuration from YAML files
// with environment variable overrides. Applications embedding the SDK can
// load a Config once at startup and hand the relevant sections to the
// broker connection and client constructors.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "VSSLINK"

// BrokerConfig configures the databroker connection.
type BrokerConfig struct {
	URL            string        `yaml:"url"`
	Name           string        `yaml:"name"`
	Token          string        `yaml:"token,omitempty"`
	Credentials    string        `yaml:"credentials,omitempty"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	MaxReconnects  int           `yaml:"max_reconnects"`
	TLSCert        string        `yaml:"tls_cert,omitempty"`
	TLSKey         string        `yaml:"tls_key,omitempty"`
	TLSCA          string        `yaml:"tls_ca,omitempty"`
}

// ClientConfig configures the client loops.
type ClientConfig struct {
	Name           string        `yaml:"name"`
	ConnectWait    time.Duration `yaml:"connect_wait"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

// MetricsConfig configures the optional metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete SDK configuration.
type Config struct {
	Broker  BrokerConfig  `yaml:"broker"`
	Client  ClientConfig  `yaml:"client"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// Default returns a configuration with working defaults for a local
// databroker.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			URL:            "nats://localhost:4222",
			Name:           "vsslink",
			ConnectTimeout: 5 * time.Second,
			MaxReconnects:  -1,
		},
		Client: ClientConfig{
			Name:           "vsslink",
			ConnectWait:    5 * time.Second,
			BackoffInitial: 100 * time.Millisecond,
			BackoffMax:     30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9090",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file, applies environment overrides and
// validates the result. An empty path loads defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(EnvPrefix + "_BROKER_URL"); val != "" {
		cfg.Broker.URL = val
	}
	if val := os.Getenv(EnvPrefix + "_BROKER_TOKEN"); val != "" {
		cfg.Broker.Token = val
	}
	if val := os.Getenv(EnvPrefix + "_BROKER_CREDENTIALS"); val != "" {
		cfg.Broker.Credentials = val
	}
	if val := os.Getenv(EnvPrefix + "_CONNECT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Broker.ConnectTimeout = d
		}
	}
	if val := os.Getenv(EnvPrefix + "_CLIENT_NAME"); val != "" {
		cfg.Client.Name = val
	}
	if val := os.Getenv(EnvPrefix + "_LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
}

// Validate checks the configuration for values the SDK cannot work with.
func (c *Config) Validate() error {
	if c.Broker.URL == "" {
		return fmt.Errorf("config: broker.url is required")
	}
	if !strings.HasPrefix(c.Broker.URL, "nats://") && !strings.HasPrefix(c.Broker.URL, "tls://") {
		return fmt.Errorf("config: broker.url must use nats:// or tls:// scheme, got %q", c.Broker.URL)
	}
	if c.Broker.ConnectTimeout <= 0 {
		return fmt.Errorf("config: broker.connect_timeout must be positive")
	}
	if c.Client.ConnectWait <= 0 {
		return fmt.Errorf("config: client.connect_wait must be positive")
	}
	if c.Client.BackoffInitial <= 0 || c.Client.BackoffMax < c.Client.BackoffInitial {
		return fmt.Errorf("config: client backoff range %v..%v is invalid",
			c.Client.BackoffInitial, c.Client.BackoffMax)
	}
	if c.Broker.Token != "" && c.Broker.Credentials != "" {
		return fmt.Errorf("config: broker.token and broker.credentials are mutually exclusive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	return nil
}

// LogLevel maps the configured level to a slog level string understood by
// slog.Level.UnmarshalText. Kept as a helper so callers do not repeat the
// normalization.
func (c *Config) LogLevel() string {
	return strings.ToUpper(c.Log.Level)
}
