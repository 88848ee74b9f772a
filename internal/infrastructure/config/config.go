package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Storage drivers.
const (
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Directory sources.
const (
	SourceFile = "file"
	SourceHTTP = "http"
)

// Config holds all daemon configuration.
type Config struct {
	Relay       RelayConfig
	Correlation CorrelationConfig
	Storage     StorageConfig
	Directory   DirectoryConfig
	Notify      NotifyConfig
	API         APIConfig
	Proxy       ProxyConfig
	Logging     LogConfig
}

// RelayConfig holds the relay endpoint and reconnect policy.
type RelayConfig struct {
	URL              string        `envconfig:"COURIER_RELAY_URL" default:"ws://127.0.0.1:45000/ws"`
	BackoffFloor     time.Duration `envconfig:"COURIER_BACKOFF_FLOOR" default:"1s"`
	BackoffCeiling   time.Duration `envconfig:"COURIER_BACKOFF_CEILING" default:"30s"`
	HandshakeTimeout time.Duration `envconfig:"COURIER_HANDSHAKE_TIMEOUT" default:"5s"`
	WriteTimeout     time.Duration `envconfig:"COURIER_WRITE_TIMEOUT" default:"2s"`
}

// CorrelationConfig holds tagging parameters.
type CorrelationConfig struct {
	HeaderName    string        `envconfig:"COURIER_HEADER" default:"Pioneer-Correlation-Id"`
	CounterKey    string        `envconfig:"COURIER_COUNTER_KEY" default:"pioneerCorrelationId"`
	ReadyTimeout  time.Duration `envconfig:"COURIER_READY_TIMEOUT" default:"5s"`
	LookupTimeout time.Duration `envconfig:"COURIER_LOOKUP_TIMEOUT" default:"2s"`
	RestartGap    int64         `envconfig:"COURIER_COUNTER_RESTART_GAP" default:"0"`
}

// StorageConfig selects the durable counter store.
type StorageConfig struct {
	Driver string `envconfig:"COURIER_STORAGE_DRIVER" default:"badger"`
	Path   string `envconfig:"COURIER_STORAGE_PATH" default:"/tmp/courier/counter"`
}

// DirectoryConfig selects the container identity and role source.
type DirectoryConfig struct {
	Source            string  `envconfig:"COURIER_DIRECTORY_SOURCE" default:"file"`
	Path              string  `envconfig:"COURIER_DIRECTORY_PATH" default:"containers.yaml"`
	URL               string  `envconfig:"COURIER_DIRECTORY_URL"`
	Watch             bool    `envconfig:"COURIER_DIRECTORY_WATCH" default:"true"`
	RequestsPerSecond float64 `envconfig:"COURIER_DIRECTORY_RPS" default:"0"`
}

// NotifyConfig configures user notifications.
type NotifyConfig struct {
	WebhookURL  string        `envconfig:"COURIER_NOTIFY_WEBHOOK"`
	Icon        string        `envconfig:"COURIER_NOTIFY_ICON" default:"img/multiaccountcontainer-48.svg"`
	MinInterval time.Duration `envconfig:"COURIER_NOTIFY_MIN_INTERVAL" default:"0s"`
}

// APIConfig holds the hook API listen address.
type APIConfig struct {
	Host string `envconfig:"COURIER_API_HOST" default:"127.0.0.1"`
	Port string `envconfig:"COURIER_API_PORT" default:"45100"`
}

// ProxyConfig holds the forward proxy settings.
type ProxyConfig struct {
	Enabled         bool   `envconfig:"COURIER_PROXY_ENABLED" default:"false"`
	Addr            string `envconfig:"COURIER_PROXY_ADDR" default:"127.0.0.1:45101"`
	ContainerHeader string `envconfig:"COURIER_PROXY_CONTAINER_HEADER" default:"X-Courier-Container"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads environment variables without validating, so callers can
// apply overrides first.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			URL:              "ws://127.0.0.1:45000/ws",
			BackoffFloor:     time.Second,
			BackoffCeiling:   30 * time.Second,
			HandshakeTimeout: 5 * time.Second,
			WriteTimeout:     2 * time.Second,
		},
		Correlation: CorrelationConfig{
			HeaderName:    "Pioneer-Correlation-Id",
			CounterKey:    "pioneerCorrelationId",
			ReadyTimeout:  5 * time.Second,
			LookupTimeout: 2 * time.Second,
		},
		Storage: StorageConfig{
			Driver: DriverBadger,
			Path:   "/tmp/courier/counter",
		},
		Directory: DirectoryConfig{
			Source: SourceFile,
			Path:   "containers.yaml",
			Watch:  true,
		},
		Notify: NotifyConfig{
			Icon: "img/multiaccountcontainer-48.svg",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: "45100",
		},
		Proxy: ProxyConfig{
			Addr:            "127.0.0.1:45101",
			ContainerHeader: "X-Courier-Container",
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	var errs []error

	if c.Relay.URL == "" {
		errs = append(errs, errors.New("relay url is required"))
	}
	if c.Relay.BackoffFloor <= 0 {
		errs = append(errs, errors.New("backoff floor must be positive"))
	}
	if c.Relay.BackoffCeiling < c.Relay.BackoffFloor {
		errs = append(errs, errors.New("backoff ceiling must not be below the floor"))
	}
	if c.Correlation.HeaderName == "" {
		errs = append(errs, errors.New("correlation header name is required"))
	}
	if c.Correlation.CounterKey == "" {
		errs = append(errs, errors.New("counter key is required"))
	}
	if c.Correlation.RestartGap < 0 {
		errs = append(errs, errors.New("counter restart gap must not be negative"))
	}

	switch c.Storage.Driver {
	case DriverBadger, DriverSQLite:
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage path is required for driver %q", c.Storage.Driver))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	switch c.Directory.Source {
	case SourceFile:
		if c.Directory.Path == "" {
			errs = append(errs, errors.New("directory path is required for file source"))
		}
	case SourceHTTP:
		if c.Directory.URL == "" {
			errs = append(errs, errors.New("directory url is required for http source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown directory source %q", c.Directory.Source))
	}

	return errors.Join(errs...)
}

// APIAddr returns the host:port the hook API listens on.
func (c *Config) APIAddr() string {
	return c.API.Host + ":" + c.API.Port
}
