package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/escrowdesk/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a new order snapshot.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			asset, order_id, owner, total_units, remaining_units,
			min_fill_units, locked_units, price_ticks, fiat_currency,
			payment_method, status, created_at, filled_at, cancelled_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		o.Asset, int64(o.ID), o.Owner.Hex(),
		o.TotalUnits, o.RemainingUnits,
		o.MinFillUnits, o.LockedUnits,
		o.Terms.PriceTicks, o.Terms.FiatCurrency, o.Terms.PaymentMethod,
		string(o.Status), o.CreatedAt, o.FilledAt, o.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s/%d: %w", o.Asset, o.ID, err)
	}
	return nil
}

// Update writes back a mutated order snapshot after a lifecycle transition.
func (s *OrderStore) Update(ctx context.Context, o domain.Order) error {
	const query = `
		UPDATE orders SET
			remaining_units = $3, locked_units = $4, status = $5,
			filled_at = $6, cancelled_at = $7, updated_at = NOW()
		WHERE asset = $1 AND order_id = $2`

	tag, err := s.pool.Exec(ctx, query,
		o.Asset, int64(o.ID),
		o.RemainingUnits, o.LockedUnits, string(o.Status),
		o.FilledAt, o.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update order %s/%d: %w", o.Asset, o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// orderSelectCols lists the columns selected when reading orders.
const orderSelectCols = `asset, order_id, owner, total_units, remaining_units,
	min_fill_units, locked_units, price_ticks, fiat_currency,
	payment_method, status, created_at, filled_at, cancelled_at`

func scanOrderFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Order, error) {
	var o domain.Order
	var id int64
	var owner, status string

	err := scanner.Scan(
		&o.Asset, &id, &owner,
		&o.TotalUnits, &o.RemainingUnits,
		&o.MinFillUnits, &o.LockedUnits,
		&o.Terms.PriceTicks, &o.Terms.FiatCurrency, &o.Terms.PaymentMethod,
		&status, &o.CreatedAt, &o.FilledAt, &o.CancelledAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.ID = uint64(id)
	o.Owner = common.HexToAddress(owner)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetByID retrieves a single order snapshot.
func (s *OrderStore) GetByID(ctx context.Context, asset string, id uint64) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE asset = $1 AND order_id = $2`,
		asset, int64(id))

	o, err := scanOrderFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s/%d: %w", asset, id, err)
	}
	return o, nil
}

// ListByOwner returns all orders created by the account, in creation order.
func (s *OrderStore) ListByOwner(ctx context.Context, asset string, owner common.Address) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE asset = $1 AND owner = $2
		 ORDER BY order_id ASC`, asset, owner.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by owner: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders by owner: %w", err)
	}
	return orders, nil
}

// ListByAsset returns orders for a market with pagination.
func (s *OrderStore) ListByAsset(ctx context.Context, asset string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE asset = $1`
	args := []any{asset}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY order_id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by asset: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders by asset: %w", err)
	}
	return orders, nil
}

// ListTerminalBefore returns filled/cancelled orders whose terminal
// timestamp is strictly before the cutoff, for archival.
func (s *OrderStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE status IN ('filled', 'cancelled')
		   AND COALESCE(filled_at, cancelled_at) < $1
		 ORDER BY asset, order_id`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan terminal orders: %w", err)
	}
	return orders, nil
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
