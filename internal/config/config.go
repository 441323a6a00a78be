// Package config defines the top-level configuration for the escrow desk
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ESCROWDESK_* environment
// variables.
type Config struct {
	Desk     DeskConfig     `toml:"desk"`
	Custody  CustodyConfig  `toml:"custody"`
	Verifier VerifierConfig `toml:"verifier"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Archive  ArchiveConfig  `toml:"archive"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig describes one market to initialize at startup.
type MarketConfig struct {
	Asset              string `toml:"asset"`
	Kind               string `toml:"kind"`        // "pooled" or "external"
	PoolFunder         string `toml:"pool_funder"` // pooled markets only
	PoolUnits          int64  `toml:"pool_units"`  // initial pool funding, fixed-point units
	AllowFinalBelowMin bool   `toml:"allow_final_below_min"`
}

// DeskConfig holds the markets the desk serves.
type DeskConfig struct {
	Markets []MarketConfig `toml:"markets"`
}

// SeedBalance credits an account at startup, for development and paper
// deployments of the in-memory custody ledger.
type SeedBalance struct {
	Account string `toml:"account"`
	Units   int64  `toml:"units"`
}

// CustodyConfig holds custody ledger parameters.
type CustodyConfig struct {
	Seed []SeedBalance `toml:"seed"`
}

// VerifierConfig selects and parameterizes the settlement proof verifier.
type VerifierConfig struct {
	Mode          string `toml:"mode"` // "transcript", "accept_all", "reject_all"
	NotaryAddress string `toml:"notary_address"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`

	// RateLimitPerMin caps requests per client IP per minute at the HTTP
	// layer. 0 disables the cap; per-account limits on order mutations
	// apply regardless.
	RateLimitPerMin int `toml:"rate_limit_per_min"`
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// duration wraps time.Duration to support TOML string decoding ("24h").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Desk: DeskConfig{},
		Verifier: VerifierConfig{
			Mode: "transcript",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "escrowdesk",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "escrowdesk-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimitPerMin: 600,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validVerifierModes enumerates the accepted values for VerifierConfig.Mode.
var validVerifierModes = map[string]bool{
	"transcript": true,
	"accept_all": true,
	"reject_all": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Desk markets
	if c.Mode != "archive" && len(c.Desk.Markets) == 0 {
		errs = append(errs, "desk: at least one market must be configured")
	}
	seen := map[string]bool{}
	for i, m := range c.Desk.Markets {
		if m.Asset == "" {
			errs = append(errs, fmt.Sprintf("desk: market %d: asset must not be empty", i))
		}
		if seen[m.Asset] {
			errs = append(errs, fmt.Sprintf("desk: duplicate market for asset %q", m.Asset))
		}
		seen[m.Asset] = true
		if m.Kind != "pooled" && m.Kind != "external" {
			errs = append(errs, fmt.Sprintf("desk: market %q: kind must be pooled or external, got %q", m.Asset, m.Kind))
		}
		if m.Kind == "pooled" {
			if !common.IsHexAddress(m.PoolFunder) {
				errs = append(errs, fmt.Sprintf("desk: market %q: pool_funder must be a hex address", m.Asset))
			}
			if m.PoolUnits < 0 {
				errs = append(errs, fmt.Sprintf("desk: market %q: pool_units must be >= 0", m.Asset))
			}
		}
	}

	// Custody seeds
	for i, s := range c.Custody.Seed {
		if !common.IsHexAddress(s.Account) {
			errs = append(errs, fmt.Sprintf("custody: seed %d: account must be a hex address", i))
		}
		if s.Units <= 0 {
			errs = append(errs, fmt.Sprintf("custody: seed %d: units must be > 0", i))
		}
	}

	// Verifier
	if !validVerifierModes[strings.ToLower(c.Verifier.Mode)] {
		errs = append(errs, fmt.Sprintf("verifier: unknown mode %q (valid: transcript, accept_all, reject_all)", c.Verifier.Mode))
	}
	if strings.ToLower(c.Verifier.Mode) == "transcript" && !common.IsHexAddress(c.Verifier.NotaryAddress) {
		errs = append(errs, "verifier: notary_address must be a hex address in transcript mode")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only required when archival is on.
	if c.Archive.Enabled || c.Mode == "archive" {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archival is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archival is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMin < 0 {
			errs = append(errs, "server: rate_limit_per_min must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
