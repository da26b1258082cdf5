// Package config loads application configuration from defaults, an optional
// YAML file and PUSHRELAY_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
// Nested keys are separated by a double underscore: PUSHRELAY_SERVER__PORT.
const EnvPrefix = "PUSHRELAY_"

// Config is the application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	CORS      CORSConfig      `koanf:"cors"`
	JWT       JWTConfig       `koanf:"jwt"`
	Keys      KeysConfig      `koanf:"keys"`
	Push      PushConfig      `koanf:"push"`
	Heartbeat HeartbeatConfig `koanf:"heartbeat"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Sites     SitesConfig     `koanf:"sites"`

	// PublicBaseURL is where browsers reach this service; callback URLs in push payloads use it.
	PublicBaseURL string `koanf:"public_base_url" validate:"required,url"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required"`
	MetricsPort       string        `koanf:"metrics_port" validate:"required"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	// WriteTimeout must exceed the longest dispatch: sends respond after every attempt settled.
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts" validate:"min=1"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// CORSConfig contains CORS settings of the dashboard API.
// Public subscriber routes accept any origin.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// JWTConfig contains settings for validating identity provider tokens.
type JWTConfig struct {
	SecretKey string        `koanf:"secret_key" validate:"required,min=16"`
	Issuer    string        `koanf:"issuer"`
	Leeway    time.Duration `koanf:"leeway"`
}

// KeysConfig contains key vault settings.
type KeysConfig struct {
	// MasterKey seals site private keys at rest. Empty stores them unsealed.
	MasterKey string `koanf:"master_key" validate:"omitempty,min=32"`
}

// PushConfig contains Web Push delivery settings.
type PushConfig struct {
	Subscriber     string        `koanf:"subscriber" validate:"required"`
	TTL            time.Duration `koanf:"ttl" validate:"min=0"`
	Urgency        string        `koanf:"urgency" validate:"omitempty,oneof=very-low low normal high"`
	AttemptTimeout time.Duration `koanf:"attempt_timeout" validate:"min=0"`
	MaxConcurrency int           `koanf:"max_concurrency" validate:"min=1"`
	RecordSize     int           `koanf:"record_size" validate:"min=0,max=4096"`
	MaxPayloadSize int           `koanf:"max_payload_size" validate:"min=0,max=4000"`
}

// HeartbeatConfig contains stale subscription sweeper settings.
type HeartbeatConfig struct {
	// StaleAfter enables the sweeper when positive. Zero, the default, disables it.
	StaleAfter    time.Duration `koanf:"stale_after" validate:"min=0"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	BatchSize     int           `koanf:"batch_size" validate:"min=0"`
}

// RateLimitConfig limits public endpoints per client IP.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"min=0"`
	Burst             int     `koanf:"burst" validate:"min=0"`
}

// SitesConfig contains tenant site settings.
type SitesConfig struct {
	// DefaultQuota applies to new sites; 0 means unlimited.
	DefaultQuota int `koanf:"default_quota" validate:"min=0"`
}

// Default returns the configuration used for keys nobody set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			Leeway: 30 * time.Second,
		},
		Push: PushConfig{
			TTL:            24 * time.Hour,
			Urgency:        "normal",
			AttemptTimeout: 10 * time.Second,
			MaxConcurrency: 100,
		},
		Heartbeat: HeartbeatConfig{
			SweepInterval: 10 * time.Minute,
			BatchSize:     1000,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Sites: SitesConfig{
			DefaultQuota: 10000,
		},
	}
}

// Load reads configuration. The YAML file named by CONFIG_FILE is optional.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// envKey maps PUSHRELAY_PUSH__MAX_CONCURRENCY to push.max_concurrency.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}
