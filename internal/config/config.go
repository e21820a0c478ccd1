// Package config loads application configuration from a YAML file and
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/sjtu-digest/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides. Nested keys are
// separated by a double underscore: SJTU_DIGEST_SERVER__METRICS_PORT.
const EnvPrefix = "SJTU_DIGEST_"

// Backend drivers.
const (
	DriverPostgREST = "postgrest"
	DriverPostgres  = "postgres"
)

// Config is the application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Backend   BackendConfig   `koanf:"backend"`
	Database  DatabaseConfig  `koanf:"database"`
	Sessions  SessionsConfig  `koanf:"sessions"`
	Toast     ToastConfig     `koanf:"toast"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	CORS      CORSConfig      `koanf:"cors"`
	Sources   []domain.Source `koanf:"sources" validate:"dive"`
}

// ServerConfig configures the HTTP servers.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required"`
	MetricsPort       string        `koanf:"metrics_port" validate:"required"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	RequestTimeout    time.Duration `koanf:"request_timeout" validate:"gt=0"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// BackendConfig selects and configures the subscription backend.
// Missing or placeholder connection values leave the backend unconfigured;
// this is not a configuration error.
type BackendConfig struct {
	Driver    string        `koanf:"driver" validate:"oneof=postgrest postgres"`
	URL       string        `koanf:"url"`
	Key       string        `koanf:"key"`
	Timeout   time.Duration `koanf:"timeout"`
	DemoDelay time.Duration `koanf:"demo_delay" validate:"gte=0"`
}

// DatabaseConfig configures the direct PostgreSQL backend.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts" validate:"gte=0"`
}

// SessionsConfig configures the in-memory form sessions.
type SessionsConfig struct {
	TTL           time.Duration `koanf:"ttl" validate:"gt=0"`
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"gt=0"`
	CookieSecure  bool          `koanf:"cookie_secure"`
}

// ToastConfig configures transient messages.
type ToastConfig struct {
	Duration time.Duration `koanf:"duration" validate:"gt=0"`
}

// RateLimitConfig configures per-client limits on submit endpoints.
// A zero RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps" validate:"gte=0"`
	Burst int     `koanf:"burst" validate:"gte=0"`
}

// CORSConfig configures cross-origin access to the JSON API.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			RequestTimeout:    60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Backend: BackendConfig{
			Driver:  DriverPostgREST,
			Timeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Sessions: SessionsConfig{
			TTL:           30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Toast: ToastConfig{
			Duration: domain.DefaultToastDuration,
		},
		RateLimit: RateLimitConfig{
			RPS:   1,
			Burst: 5,
		},
		Sources: domain.DefaultSources(),
	}
}

// Load reads configuration. Defaults are overlaid by the YAML file at path
// (skipped when empty) and then by SJTU_DIGEST_* environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if k.Exists("sources") {
		// Replace rather than merge into the built-in list.
		cfg.Sources = nil
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps SJTU_DIGEST_BACKEND__DEMO_DELAY to backend.demo_delay.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := domain.NewCatalog(c.Sources); err != nil {
		return fmt.Errorf("invalid config: sources: %w", err)
	}

	return nil
}
