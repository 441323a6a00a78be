package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ESCROWDESK_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ESCROWDESK_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Verifier ──
	setStr(&cfg.Verifier.Mode, "ESCROWDESK_VERIFIER_MODE")
	setStr(&cfg.Verifier.NotaryAddress, "ESCROWDESK_VERIFIER_NOTARY_ADDRESS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ESCROWDESK_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ESCROWDESK_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ESCROWDESK_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ESCROWDESK_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ESCROWDESK_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ESCROWDESK_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ESCROWDESK_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ESCROWDESK_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ESCROWDESK_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ESCROWDESK_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ESCROWDESK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ESCROWDESK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ESCROWDESK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ESCROWDESK_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ESCROWDESK_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ESCROWDESK_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ESCROWDESK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ESCROWDESK_S3_REGION")
	setStr(&cfg.S3.Bucket, "ESCROWDESK_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ESCROWDESK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ESCROWDESK_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ESCROWDESK_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ESCROWDESK_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ESCROWDESK_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ESCROWDESK_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "ESCROWDESK_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "ESCROWDESK_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerMin, "ESCROWDESK_SERVER_RATE_LIMIT_PER_MIN")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ESCROWDESK_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "ESCROWDESK_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "ESCROWDESK_ARCHIVE_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "ESCROWDESK_MODE")
	setStr(&cfg.LogLevel, "ESCROWDESK_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
