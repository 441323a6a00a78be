package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleTOML = `
mode = "full"
log_level = "debug"

[[desk.markets]]
asset = "BTC"
kind = "pooled"
pool_funder = "0x00000000000000000000000000000000000000f1"
pool_units = 5000000
allow_final_below_min = true

[[custody.seed]]
account = "0x00000000000000000000000000000000000000f1"
units = 5000000

[verifier]
mode = "accept_all"

[postgres]
host = "db.internal"
port = 5433

[redis]
addr = "cache.internal:6379"

[s3]
bucket = "desk-archive"

[server]
port = 9000
api_key = "secret"

[archive]
enabled = true
retention_days = 30
interval = "6h"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Mode != "full" || cfg.LogLevel != "debug" {
		t.Fatalf("mode=%q log_level=%q", cfg.Mode, cfg.LogLevel)
	}
	if len(cfg.Desk.Markets) != 1 || cfg.Desk.Markets[0].Asset != "BTC" {
		t.Fatalf("markets = %+v", cfg.Desk.Markets)
	}
	if cfg.Desk.Markets[0].PoolUnits != 5_000_000 || !cfg.Desk.Markets[0].AllowFinalBelowMin {
		t.Fatalf("market = %+v", cfg.Desk.Markets[0])
	}
	if cfg.Postgres.Host != "db.internal" || cfg.Postgres.Port != 5433 {
		t.Fatalf("postgres = %+v", cfg.Postgres)
	}
	// Unset fields keep their defaults.
	if cfg.Postgres.Database != "escrowdesk" || cfg.Postgres.PoolMaxConns != 10 {
		t.Fatalf("postgres defaults lost: %+v", cfg.Postgres)
	}
	if cfg.Server.RateLimitPerMin != 600 {
		t.Fatalf("rate_limit_per_min default lost: %d", cfg.Server.RateLimitPerMin)
	}
	if cfg.Archive.Interval.Duration != 6*time.Hour {
		t.Fatalf("interval = %v", cfg.Archive.Interval.Duration)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ESCROWDESK_REDIS_ADDR", "override:6380")
	t.Setenv("ESCROWDESK_SERVER_PORT", "7777")
	t.Setenv("ESCROWDESK_ARCHIVE_INTERVAL", "90m")
	t.Setenv("ESCROWDESK_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(writeConfig(t, sampleTOML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Redis.Addr != "override:6380" {
		t.Fatalf("redis addr = %q", cfg.Redis.Addr)
	}
	if cfg.Server.Port != 7777 {
		t.Fatalf("server port = %d", cfg.Server.Port)
	}
	if cfg.Archive.Interval.Duration != 90*time.Minute {
		t.Fatalf("interval = %v", cfg.Archive.Interval.Duration)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != "https://a.example" {
		t.Fatalf("cors origins = %v", cfg.Server.CORSOrigins)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Mode = "cluster" }, "unknown mode"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "unknown log_level"},
		{"no markets", func(c *Config) { c.Desk.Markets = nil }, "at least one market"},
		{"bad market kind", func(c *Config) { c.Desk.Markets[0].Kind = "hybrid" }, "kind must be pooled or external"},
		{"bad pool funder", func(c *Config) { c.Desk.Markets[0].PoolFunder = "not-an-address" }, "pool_funder"},
		{"duplicate market", func(c *Config) {
			c.Desk.Markets = append(c.Desk.Markets, c.Desk.Markets[0])
		}, "duplicate market"},
		{"transcript without notary", func(c *Config) {
			c.Verifier.Mode = "transcript"
			c.Verifier.NotaryAddress = ""
		}, "notary_address"},
		{"bad seed account", func(c *Config) {
			c.Custody.Seed = []SeedBalance{{Account: "bogus", Units: 1}}
		}, "seed 0: account"},
		{"bad server port", func(c *Config) { c.Server.Port = 70000 }, "server: port"},
		{"negative rate limit", func(c *Config) { c.Server.RateLimitPerMin = -1 }, "rate_limit_per_min"},
		{"archive without bucket", func(c *Config) {
			c.Archive.Enabled = true
			c.S3.Bucket = ""
		}, "s3: bucket"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sampleTOML))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			tc.mutate(cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatal("validate accepted an invalid config")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateArchiveModeNeedsNoMarkets(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Mode = "archive"
	cfg.Desk.Markets = nil
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate archive mode without markets: %v", err)
	}
}
