package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ehr/hl7readable/internal/platform/archive"
	"github.com/ehr/hl7readable/internal/platform/hl7v2"
)

// Archive backends.
const (
	ArchiveNone     = "none"
	ArchiveMemory   = "memory"
	ArchivePostgres = "postgres"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	MaxBodySize      string        `mapstructure:"MAX_BODY_SIZE"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	SingletonPolicy  string        `mapstructure:"SINGLETON_POLICY"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	ArchiveBackend   string        `mapstructure:"ARCHIVE_BACKEND"`
	ArchiveMemoryMax int           `mapstructure:"ARCHIVE_MEMORY_MAX"`
	ArchiveSchema    string        `mapstructure:"ARCHIVE_SCHEMA"`
	MigrationsDir    string        `mapstructure:"MIGRATIONS_DIR"`
	ArchiveKey       string        `mapstructure:"ARCHIVE_ENCRYPTION_KEY"`
	AuthSigningKey   string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer       string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience     string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	MetricsEnabled   bool          `mapstructure:"METRICS_ENABLED"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "MAX_BODY_SIZE", "REQUEST_TIMEOUT", "SINGLETON_POLICY",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"ARCHIVE_BACKEND", "ARCHIVE_MEMORY_MAX", "ARCHIVE_SCHEMA", "MIGRATIONS_DIR",
	"ARCHIVE_ENCRYPTION_KEY",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"METRICS_ENABLED",
}

// Load reads configuration from the environment and an optional .env file.
// Environment variables win over the file.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MAX_BODY_SIZE", "1M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("SINGLETON_POLICY", "last")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("ARCHIVE_MEMORY_MAX", 1000)
	v.SetDefault("ARCHIVE_SCHEMA", "public")
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("METRICS_ENABLED", true)

	// Unmarshal only sees keys viper knows about
	for _, k := range keys {
		v.BindEnv(k)
	}

	// a missing .env is fine
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.ArchiveBackend = strings.ToLower(strings.TrimSpace(cfg.ArchiveBackend))
	if cfg.ArchiveBackend == "" {
		cfg.ArchiveBackend = ArchiveNone
		if cfg.DatabaseURL != "" {
			cfg.ArchiveBackend = ArchivePostgres
		}
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AuthEnabled reports whether bearer tokens are required on the API.
func (c *Config) AuthEnabled() bool {
	return c.AuthSigningKey != ""
}

// Policy returns the parsed duplicate-singleton policy.
func (c *Config) Policy() (hl7v2.SingletonPolicy, error) {
	return hl7v2.ParseSingletonPolicy(c.SingletonPolicy)
}

// ArchiveEncryptor returns the encryptor for archived raw messages, or nil
// when ARCHIVE_ENCRYPTION_KEY is unset.
func (c *Config) ArchiveEncryptor() (*archive.Encryptor, error) {
	if c.ArchiveKey == "" {
		return nil, nil
	}
	key, err := archive.ParseKey(c.ArchiveKey)
	if err != nil {
		return nil, err
	}
	return archive.NewEncryptor(key)
}

// Level returns the parsed zerolog level.
func (c *Config) Level() (zerolog.Level, error) {
	if c.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(strings.ToLower(c.LogLevel))
}

// Validate checks that the configuration is usable before the server starts.
func (c *Config) Validate() error {
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("SINGLETON_POLICY: %w", err)
	}
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}

	switch c.ArchiveBackend {
	case ArchiveNone, ArchiveMemory:
	case ArchivePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when ARCHIVE_BACKEND is %q", ArchivePostgres)
		}
	default:
		return fmt.Errorf("ARCHIVE_BACKEND must be %q, %q or %q, got %q",
			ArchiveNone, ArchiveMemory, ArchivePostgres, c.ArchiveBackend)
	}

	if c.ArchiveKey != "" {
		if _, err := c.ArchiveEncryptor(); err != nil {
			return fmt.Errorf("ARCHIVE_ENCRYPTION_KEY: %w", err)
		}
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	if c.IsProduction() && !c.AuthEnabled() {
		return fmt.Errorf("AUTH_SIGNING_KEY is required in production")
	}
	if c.AuthEnabled() && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
	}

	return nil
}
