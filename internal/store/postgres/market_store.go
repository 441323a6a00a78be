package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/escrowdesk/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Upsert inserts or refreshes a market record.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (asset, kind, pool_funder, allow_final_below_min, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (asset) DO UPDATE SET
			kind = EXCLUDED.kind,
			pool_funder = EXCLUDED.pool_funder,
			allow_final_below_min = EXCLUDED.allow_final_below_min,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		m.Asset, string(m.Kind), m.PoolFunder.Hex(), m.AllowFinalBelowMin, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.Asset, err)
	}
	return nil
}

func scanMarket(scanner interface{ Scan(dest ...any) error }) (domain.Market, error) {
	var m domain.Market
	var kind, funder string
	if err := scanner.Scan(&m.Asset, &kind, &funder, &m.AllowFinalBelowMin, &m.CreatedAt); err != nil {
		return domain.Market{}, err
	}
	m.Kind = domain.MarketKind(kind)
	m.PoolFunder = common.HexToAddress(funder)
	return m, nil
}

// GetByAsset retrieves a single market record.
func (s *MarketStore) GetByAsset(ctx context.Context, asset string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT asset, kind, pool_funder, allow_final_below_min, created_at
		 FROM markets WHERE asset = $1`, asset)

	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrMarketNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", asset, err)
	}
	return m, nil
}

// List returns all market records, ordered by asset.
func (s *MarketStore) List(ctx context.Context) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT asset, kind, pool_funder, allow_final_below_min, created_at
		 FROM markets ORDER BY asset`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
