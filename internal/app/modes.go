package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/escrowdesk/internal/domain"
	"github.com/alanyoungcy/escrowdesk/internal/server"
	"github.com/alanyoungcy/escrowdesk/internal/server/handler"
	"github.com/alanyoungcy/escrowdesk/internal/server/ws"
	"github.com/alanyoungcy/escrowdesk/internal/service"
)

// archiveLockKey single-flights the archive job across replicas.
const archiveLockKey = "archive"

// ServeMode starts the HTTP + WebSocket API server over the desk engine.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// ArchiveMode runs the cold-storage archival loop without the API server.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: archiver requires postgres and s3 to be wired")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.runArchiveLoop(ctx, deps)
	})

	return g.Wait()
}

// FullMode starts the API server and the archival loop together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps)

	if a.cfg.Archive.Enabled {
		if deps.Archiver == nil {
			a.logger.WarnContext(ctx, "full mode: archival enabled but archiver is not wired; skipping")
		} else {
			g.Go(func() error {
				return a.runArchiveLoop(ctx, deps)
			})
		}
	}

	return g.Wait()
}

// startHTTPServer adds the API server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	orderSvc := service.NewOrderService(
		deps.Desk, deps.OrderStore, deps.FillStore,
		deps.RateLimiter, deps.SignalBus, deps.AuditStore,
		a.logger,
	)
	marketSvc := service.NewMarketService(deps.Desk, deps.MarketStore, deps.AuditStore, a.logger)

	started := time.Now().UTC()

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(marketSvc, a.cfg.Mode, started, a.logger),
		Markets: handler.NewMarketHandler(marketSvc, a.logger),
		Orders:  handler.NewOrderHandler(orderSvc, a.logger),
		Custody: handler.NewCustodyHandler(marketSvc, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: started,
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		Limiter:         deps.RateLimiter,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// runArchiveLoop periodically exports settled orders, fills and audit
// history older than the retention window to cold storage. The distributed
// lock ensures only one replica runs the job per cycle.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	a.logger.InfoContext(ctx, "archive loop started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	a.runArchiveCycle(ctx, deps)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.runArchiveCycle(ctx, deps)
		}
	}
}

// runArchiveCycle performs one archival pass under the distributed lock.
func (a *App) runArchiveCycle(ctx context.Context, deps *Dependencies) {
	unlock, err := deps.LockManager.Acquire(ctx, archiveLockKey, 30*time.Minute)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.InfoContext(ctx, "archive cycle skipped, lock held by another replica")
			return
		}
		a.logger.ErrorContext(ctx, "archive cycle: acquire lock failed",
			slog.String("error", err.Error()),
		)
		return
	}
	defer unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)

	orders, err := deps.Archiver.ArchiveOrders(ctx, cutoff)
	if err != nil {
		a.logger.ErrorContext(ctx, "archive cycle: orders failed",
			slog.String("error", err.Error()),
		)
	}
	fills, err := deps.Archiver.ArchiveFills(ctx, cutoff)
	if err != nil {
		a.logger.ErrorContext(ctx, "archive cycle: fills failed",
			slog.String("error", err.Error()),
		)
	}
	audit, err := deps.Archiver.ArchiveAudit(ctx, cutoff)
	if err != nil {
		a.logger.ErrorContext(ctx, "archive cycle: audit failed",
			slog.String("error", err.Error()),
		)
	}

	a.logger.InfoContext(ctx, "archive cycle complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("orders", orders),
		slog.Int64("fills", fills),
		slog.Int64("audit_entries", audit),
	)
}
