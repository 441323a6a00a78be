package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/escrowdesk/internal/blob/s3"
	"github.com/alanyoungcy/escrowdesk/internal/cache/redis"
	"github.com/alanyoungcy/escrowdesk/internal/config"
	"github.com/alanyoungcy/escrowdesk/internal/custody"
	"github.com/alanyoungcy/escrowdesk/internal/domain"
	"github.com/alanyoungcy/escrowdesk/internal/engine"
	"github.com/alanyoungcy/escrowdesk/internal/proof"
	"github.com/alanyoungcy/escrowdesk/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Engine
	Desk *engine.Desk

	// Stores
	MarketStore domain.MarketStore
	OrderStore  domain.OrderStore
	FillStore   domain.FillStore
	AuditStore  domain.AuditStore

	// Caches
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "serve", "archive", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that require object storage.
func needsS3(mode string) bool {
	switch mode {
	case "archive", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		// Run migrations if enabled.
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.OrderStore = postgres.NewOrderStore(pool)
		deps.FillStore = postgres.NewFillStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (only for modes that need object storage) ---
	if needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)

		// Archiver: only when Postgres stores are wired as the record source.
		if deps.OrderStore != nil && deps.FillStore != nil && deps.AuditStore != nil {
			orderStore, okOrders := deps.OrderStore.(s3blob.OrderArchiveStore)
			fillStore, okFills := deps.FillStore.(s3blob.FillArchiveStore)
			if okOrders && okFills {
				deps.Archiver = s3blob.NewArchiver(
					deps.BlobWriter,
					orderStore,
					fillStore,
					deps.AuditStore,
				)
			}
		}
	}

	// --- Desk engine ---
	desk, err := buildDesk(ctx, cfg, deps)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Desk = desk

	return deps, cleanup, nil
}

// buildDesk constructs the custody ledger, proof verifier and market engines
// from configuration, seeds development balances, and funds the configured
// pools.
func buildDesk(ctx context.Context, cfg *config.Config, deps *Dependencies) (*engine.Desk, error) {
	ledger := custody.NewLedger()
	for _, s := range cfg.Custody.Seed {
		if err := ledger.Deposit(common.HexToAddress(s.Account), s.Units); err != nil {
			return nil, fmt.Errorf("wire: seed balance for %s: %w", s.Account, err)
		}
	}

	verifier, err := buildVerifier(cfg.Verifier)
	if err != nil {
		return nil, err
	}

	desk := engine.NewDesk(ledger, verifier)

	for _, mc := range cfg.Desk.Markets {
		spec := domain.Market{
			Asset:              mc.Asset,
			Kind:               domain.MarketKind(mc.Kind),
			AllowFinalBelowMin: mc.AllowFinalBelowMin,
		}
		if mc.PoolFunder != "" {
			spec.PoolFunder = common.HexToAddress(mc.PoolFunder)
		}

		m, err := desk.Initialize(spec)
		if err != nil {
			return nil, fmt.Errorf("wire: initialize market %s: %w", mc.Asset, err)
		}

		if spec.Kind == domain.MarketKindPooled && mc.PoolUnits > 0 {
			if err := desk.FundPool(mc.Asset, spec.PoolFunder, mc.PoolUnits); err != nil {
				return nil, fmt.Errorf("wire: fund pool %s: %w", mc.Asset, err)
			}
		}

		if deps.MarketStore != nil {
			if err := deps.MarketStore.Upsert(ctx, m.Spec()); err != nil {
				slog.Default().WarnContext(ctx, "wire: persist market failed",
					slog.String("asset", mc.Asset),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return desk, nil
}

// buildVerifier selects the settlement proof verifier from configuration.
func buildVerifier(cfg config.VerifierConfig) (domain.ProofVerifier, error) {
	switch strings.ToLower(cfg.Mode) {
	case "transcript":
		if !common.IsHexAddress(cfg.NotaryAddress) {
			return nil, fmt.Errorf("wire: verifier: notary_address %q is not a hex address", cfg.NotaryAddress)
		}
		return proof.NewTranscriptVerifier(common.HexToAddress(cfg.NotaryAddress)), nil
	case "accept_all":
		return proof.AcceptAll(), nil
	case "reject_all":
		return proof.RejectAll(), nil
	default:
		return nil, fmt.Errorf("wire: verifier: unknown mode %q", cfg.Mode)
	}
}
