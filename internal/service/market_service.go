package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowdesk/internal/domain"
	"github.com/alanyoungcy/escrowdesk/internal/engine"
)

// MarketService manages market initialization, pool funding and custody
// balance operations.
type MarketService struct {
	desk    *engine.Desk
	markets domain.MarketStore
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(
	desk *engine.Desk,
	markets domain.MarketStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		desk:    desk,
		markets: markets,
		audit:   audit,
		logger:  logger,
	}
}

// Initialize creates the market engine for the given spec and persists the
// market record.
func (s *MarketService) Initialize(ctx context.Context, spec domain.Market) (domain.Market, error) {
	m, err := s.desk.Initialize(spec)
	if err != nil {
		return domain.Market{}, err
	}
	created := m.Spec()

	if s.markets != nil {
		if persistErr := s.markets.Upsert(ctx, created); persistErr != nil {
			s.logger.WarnContext(ctx, "market_service: persist market failed",
				slog.String("asset", created.Asset),
				slog.String("error", persistErr.Error()),
			)
		}
	}

	if s.audit != nil {
		if auditErr := s.audit.Log(ctx, "market_initialized", map[string]any{
			"asset": created.Asset,
			"kind":  string(created.Kind),
		}); auditErr != nil {
			s.logger.WarnContext(ctx, "market_service: audit log failed",
				slog.String("asset", created.Asset),
				slog.String("error", auditErr.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "market_service: market initialized",
		slog.String("asset", created.Asset),
		slog.String("kind", string(created.Kind)),
	)

	return created, nil
}

// Markets returns all initialized markets.
func (s *MarketService) Markets() []domain.Market {
	return s.desk.Markets()
}

// Market returns the spec for a single asset.
func (s *MarketService) Market(asset string) (domain.Market, error) {
	m, err := s.desk.Market(asset)
	if err != nil {
		return domain.Market{}, err
	}
	return m.Spec(), nil
}

// FundPool moves units from the funder's custody balance into a pooled
// market's escrow pool.
func (s *MarketService) FundPool(ctx context.Context, asset string, funder common.Address, units int64) error {
	if units <= 0 {
		return fmt.Errorf("market_service: fund pool %s with %d: %w", asset, units, domain.ErrInvalidAmount)
	}
	if err := s.desk.FundPool(asset, funder, units); err != nil {
		return err
	}

	if s.audit != nil {
		if auditErr := s.audit.Log(ctx, "pool_funded", map[string]any{
			"asset":  asset,
			"funder": funder.Hex(),
			"units":  units,
		}); auditErr != nil {
			s.logger.WarnContext(ctx, "market_service: audit log failed",
				slog.String("asset", asset),
				slog.String("error", auditErr.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "market_service: pool funded",
		slog.String("asset", asset),
		slog.String("funder", funder.Hex()),
		slog.Int64("units", units),
	)
	return nil
}

// PoolBalances returns the free and locked unit totals of a pooled market's
// escrow ledger.
func (s *MarketService) PoolBalances(asset string) (free, locked int64, err error) {
	m, err := s.desk.Market(asset)
	if err != nil {
		return 0, 0, err
	}
	ledger := m.Ledger()
	if ledger == nil {
		return 0, 0, fmt.Errorf("market_service: pool balances %s: market is externally custodied: %w",
			asset, domain.ErrInvalidStatus)
	}
	return ledger.Free(), ledger.Locked(), nil
}

// Deposit credits units to the account's custody balance.
func (s *MarketService) Deposit(ctx context.Context, account common.Address, units int64) error {
	if err := s.desk.Custody().Deposit(account, units); err != nil {
		return err
	}

	if s.audit != nil {
		if auditErr := s.audit.Log(ctx, "custody_deposit", map[string]any{
			"account": account.Hex(),
			"units":   units,
		}); auditErr != nil {
			s.logger.WarnContext(ctx, "market_service: audit log failed",
				slog.String("account", account.Hex()),
				slog.String("error", auditErr.Error()),
			)
		}
	}
	return nil
}

// Balance returns the account's custody balance in units.
func (s *MarketService) Balance(account common.Address) int64 {
	return s.desk.Custody().BalanceOf(account)
}
