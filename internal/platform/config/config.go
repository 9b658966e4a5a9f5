// Package config loads service configuration from defaults, an optional YAML
// file and LANDREG_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "landreg"

const devSigningKey = "dev-secret-key-change-in-production"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Environment string         `yaml:"environment" envconfig:"environment"`
	Server      ServerConfig   `yaml:"server"`
	Auth        AuthConfig     `yaml:"auth"`
	Database    DatabaseConfig `yaml:"database"`
	Redis       RedisConfig    `yaml:"redis"`
	Audit       AuditConfig    `yaml:"audit"`
	Tracing     TracingConfig  `yaml:"tracing"`
	Log         LogConfig      `yaml:"log"`
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr               string        `yaml:"addr" envconfig:"addr"`
	MetricsAddr        string        `yaml:"metricsAddr" envconfig:"metrics_addr"`
	ReadHeaderTimeout  time.Duration `yaml:"readHeaderTimeout" envconfig:"read_header_timeout"`
	RequestTimeout     time.Duration `yaml:"requestTimeout" envconfig:"request_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdownTimeout" envconfig:"shutdown_timeout"`
	CORSAllowedOrigins []string      `yaml:"corsAllowedOrigins" envconfig:"cors_allowed_origins"`
	MaxUploadBytes     int64         `yaml:"maxUploadBytes" envconfig:"max_upload_bytes"`
}

type AuthConfig struct {
	JWTSigningKey   string        `yaml:"jwtSigningKey" envconfig:"jwt_signing_key"`
	Issuer          string        `yaml:"issuer" envconfig:"issuer"`
	Audience        string        `yaml:"audience" envconfig:"audience"`
	AccessTokenTTL  time.Duration `yaml:"accessTokenTTL" envconfig:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refreshTokenTTL" envconfig:"refresh_token_ttl"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver" envconfig:"driver"`
	URL          string `yaml:"url" envconfig:"url"`
	SQLitePath   string `yaml:"sqlitePath" envconfig:"sqlite_path"`
	MaxOpenConns int    `yaml:"maxOpenConns" envconfig:"max_open_conns"`
}

// RedisConfig is optional; an empty URL keeps token revocation in memory.
type RedisConfig struct {
	URL          string        `yaml:"url" envconfig:"url"`
	PoolSize     int           `yaml:"poolSize" envconfig:"pool_size"`
	MinIdleConns int           `yaml:"minIdleConns" envconfig:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dialTimeout" envconfig:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"read_timeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout" envconfig:"write_timeout"`
}

// AuditConfig enables the Kafka audit sink when brokers are set.
type AuditConfig struct {
	KafkaBrokers []string `yaml:"kafkaBrokers" envconfig:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafkaTopic" envconfig:"kafka_topic"`
	BufferSize   int      `yaml:"bufferSize" envconfig:"buffer_size"`
}

type TracingConfig struct {
	Enabled      bool   `yaml:"enabled" envconfig:"enabled"`
	Exporter     string `yaml:"exporter" envconfig:"exporter"`
	OTLPEndpoint string `yaml:"otlpEndpoint" envconfig:"otlp_endpoint"`
	ServiceName  string `yaml:"serviceName" envconfig:"service_name"`
}

type LogConfig struct {
	Level  string `yaml:"level" envconfig:"level"`
	Format string `yaml:"format" envconfig:"format"`
}

// Default returns the development configuration.
func Default() Config {
	return Config{
		Environment: "dev",
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			RequestTimeout:    30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MaxUploadBytes:    10 << 20,
		},
		Auth: AuthConfig{
			JWTSigningKey:   devSigningKey,
			Issuer:          "landregistry",
			Audience:        "landregistry-api",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 24 * time.Hour,
		},
		Database: DatabaseConfig{
			Driver:       DriverMemory,
			SQLitePath:   "landregistry.db",
			MaxOpenConns: 10,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Audit: AuditConfig{
			KafkaTopic: "landregistry.audit",
			BufferSize: 256,
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "landregistry",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction reports whether dev-only defaults must be rejected.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "prod") || strings.EqualFold(c.Environment, "production")
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("auth.jwtSigningKey is required"))
	}
	if c.IsProduction() && c.Auth.JWTSigningKey == devSigningKey {
		errs = append(errs, errors.New("auth.jwtSigningKey must be set in production"))
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.Tracing.Enabled && c.Tracing.Exporter != "stdout" && c.Tracing.Exporter != "otlp" {
		errs = append(errs, fmt.Errorf("unknown tracing exporter %q", c.Tracing.Exporter))
	}
	if len(c.Audit.KafkaBrokers) > 0 && c.Audit.KafkaTopic == "" {
		errs = append(errs, errors.New("audit.kafkaTopic is required when brokers are set"))
	}
	return errors.Join(errs...)
}
