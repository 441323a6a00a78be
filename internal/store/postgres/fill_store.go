package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/escrowdesk/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore backed by the given pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// Insert records an accepted fill.
func (s *FillStore) Insert(ctx context.Context, f domain.Fill) error {
	var fiatDue string
	if f.FiatDue != nil {
		fiatDue = f.FiatDue.String()
	} else {
		fiatDue = "0"
	}

	const query = `
		INSERT INTO fills (id, asset, order_id, taker, units, fiat_due, proof_digest, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		f.ID, f.Asset, int64(f.OrderID), f.Taker.Hex(),
		f.Units, fiatDue, f.ProofDigest, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert fill %s: %w", f.ID, err)
	}
	return nil
}

func scanFillRows(rows pgx.Rows) ([]domain.Fill, error) {
	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var orderID int64
		var taker, fiatDue string

		if err := rows.Scan(&f.ID, &f.Asset, &orderID, &taker, &f.Units, &fiatDue, &f.ProofDigest, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.OrderID = uint64(orderID)
		f.Taker = common.HexToAddress(taker)
		f.FiatDue, _ = new(big.Int).SetString(fiatDue, 10)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// ListByOrder returns the fills accepted against an order, oldest first.
func (s *FillStore) ListByOrder(ctx context.Context, asset string, orderID uint64) ([]domain.Fill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, asset, order_id, taker, units, fiat_due, proof_digest, created_at
		 FROM fills WHERE asset = $1 AND order_id = $2 ORDER BY created_at ASC`,
		asset, int64(orderID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills for %s/%d: %w", asset, orderID, err)
	}
	defer rows.Close()

	fills, err := scanFillRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fills: %w", err)
	}
	return fills, nil
}

// ListBefore returns all fills recorded strictly before the cutoff, for
// archival.
func (s *FillStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Fill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, asset, order_id, taker, units, fiat_due, proof_digest, created_at
		 FROM fills WHERE created_at < $1 ORDER BY created_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills before %s: %w", before, err)
	}
	defer rows.Close()

	fills, err := scanFillRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fills before: %w", err)
	}
	return fills, nil
}

// Compile-time interface check.
var _ domain.FillStore = (*FillStore)(nil)
