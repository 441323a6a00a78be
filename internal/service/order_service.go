// Package service coordinates the in-memory engine with persistence, the
// signal bus and the audit log. The engine is the source of truth; Postgres
// is a query and audit projection of it.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowdesk/internal/domain"
	"github.com/alanyoungcy/escrowdesk/internal/engine"
)

// ordersChannel is the signal bus channel for order lifecycle events.
const ordersChannel = "orders"

// OrderService handles the order lifecycle from creation through settlement.
type OrderService struct {
	desk    *engine.Desk
	orders  domain.OrderStore
	fills   domain.FillStore
	limiter domain.RateLimiter
	bus     domain.SignalBus
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewOrderService creates an OrderService with all required dependencies.
func NewOrderService(
	desk *engine.Desk,
	orders domain.OrderStore,
	fills domain.FillStore,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		desk:    desk,
		orders:  orders,
		fills:   fills,
		limiter: limiter,
		bus:     bus,
		audit:   audit,
		logger:  logger,
	}
}

// CreateOrder runs the engine transition, journals the new order, publishes
// a creation event and writes an audit log entry.
func (s *OrderService) CreateOrder(ctx context.Context, asset string, owner common.Address, terms engine.CreateTerms) (domain.Order, error) {
	if err := s.allow(ctx, owner); err != nil {
		return domain.Order{}, err
	}

	m, err := s.desk.Market(asset)
	if err != nil {
		return domain.Order{}, err
	}

	order, err := m.CreateOrder(owner, terms)
	if err != nil {
		return domain.Order{}, err
	}

	if s.orders != nil {
		if persistErr := s.orders.Create(ctx, order); persistErr != nil {
			s.logger.WarnContext(ctx, "order_service: journal create failed",
				slog.String("asset", asset),
				slog.Uint64("order_id", order.ID),
				slog.String("error", persistErr.Error()),
			)
		}
	}

	s.publish(ctx, domain.OrderEvent{
		Type:      "order_created",
		Asset:     asset,
		OrderID:   order.ID,
		Account:   owner,
		Units:     order.TotalUnits,
		Remaining: order.RemainingUnits,
		Status:    order.Status,
		At:        order.CreatedAt,
	})

	s.auditLog(ctx, "order_created", map[string]any{
		"asset":    asset,
		"order_id": order.ID,
		"owner":    owner.Hex(),
		"total":    order.TotalUnits,
		"min_fill": order.MinFillUnits,
		"price":    order.Terms.PriceTicks,
		"currency": order.Terms.FiatCurrency,
		"method":   order.Terms.PaymentMethod,
	})

	s.logger.InfoContext(ctx, "order_service: order created",
		slog.String("asset", asset),
		slog.Uint64("order_id", order.ID),
		slog.String("owner", owner.Hex()),
		slog.Int64("total_units", order.TotalUnits),
	)

	return order, nil
}

// FillOrder applies a proof-gated fill, journals the updated order and the
// fill record, publishes a fill event and writes an audit log entry.
func (s *OrderService) FillOrder(ctx context.Context, asset string, taker common.Address, id uint64, units int64, proof []byte) (domain.Order, domain.Fill, error) {
	if err := s.allow(ctx, taker); err != nil {
		return domain.Order{}, domain.Fill{}, err
	}

	m, err := s.desk.Market(asset)
	if err != nil {
		return domain.Order{}, domain.Fill{}, err
	}

	order, fill, err := m.FillOrder(ctx, taker, id, units, proof)
	if err != nil {
		return domain.Order{}, domain.Fill{}, err
	}

	if s.orders != nil {
		if persistErr := s.orders.Update(ctx, order); persistErr != nil {
			s.logger.WarnContext(ctx, "order_service: journal fill failed",
				slog.String("asset", asset),
				slog.Uint64("order_id", order.ID),
				slog.String("error", persistErr.Error()),
			)
		}
	}
	if s.fills != nil {
		if persistErr := s.fills.Insert(ctx, fill); persistErr != nil {
			s.logger.WarnContext(ctx, "order_service: journal fill record failed",
				slog.String("asset", asset),
				slog.String("fill_id", fill.ID),
				slog.String("error", persistErr.Error()),
			)
		}
	}

	s.publish(ctx, domain.OrderEvent{
		Type:      "order_filled",
		Asset:     asset,
		OrderID:   order.ID,
		Account:   taker,
		Units:     units,
		Remaining: order.RemainingUnits,
		Status:    order.Status,
		At:        fill.CreatedAt,
	})

	s.auditLog(ctx, "order_filled", map[string]any{
		"asset":     asset,
		"order_id":  order.ID,
		"fill_id":   fill.ID,
		"taker":     taker.Hex(),
		"units":     units,
		"remaining": order.RemainingUnits,
		"fiat_due":  fill.FiatDue.String(),
		"status":    string(order.Status),
	})

	s.logger.InfoContext(ctx, "order_service: order filled",
		slog.String("asset", asset),
		slog.Uint64("order_id", order.ID),
		slog.String("taker", taker.Hex()),
		slog.Int64("units", units),
		slog.String("status", string(order.Status)),
	)

	return order, fill, nil
}

// CancelOrder runs the engine cancellation, journals the updated order,
// publishes a cancellation event and writes an audit log entry.
func (s *OrderService) CancelOrder(ctx context.Context, asset string, caller common.Address, id uint64) (domain.Order, error) {
	if err := s.allow(ctx, caller); err != nil {
		return domain.Order{}, err
	}

	m, err := s.desk.Market(asset)
	if err != nil {
		return domain.Order{}, err
	}

	order, err := m.CancelOrder(caller, id)
	if err != nil {
		return domain.Order{}, err
	}

	if s.orders != nil {
		if persistErr := s.orders.Update(ctx, order); persistErr != nil {
			s.logger.WarnContext(ctx, "order_service: journal cancel failed",
				slog.String("asset", asset),
				slog.Uint64("order_id", order.ID),
				slog.String("error", persistErr.Error()),
			)
		}
	}

	s.publish(ctx, domain.OrderEvent{
		Type:      "order_cancelled",
		Asset:     asset,
		OrderID:   order.ID,
		Account:   caller,
		Remaining: order.RemainingUnits,
		Status:    order.Status,
		At:        *order.CancelledAt,
	})

	s.auditLog(ctx, "order_cancelled", map[string]any{
		"asset":     asset,
		"order_id":  order.ID,
		"owner":     caller.Hex(),
		"remaining": order.RemainingUnits,
	})

	s.logger.InfoContext(ctx, "order_service: order cancelled",
		slog.String("asset", asset),
		slog.Uint64("order_id", order.ID),
	)

	return order, nil
}

// GetOrder retrieves a single order from the engine.
func (s *OrderService) GetOrder(asset string, id uint64) (domain.Order, error) {
	m, err := s.desk.Market(asset)
	if err != nil {
		return domain.Order{}, err
	}
	return m.GetOrder(id)
}

// ListByOwner returns the account's orders for the asset, in creation order.
func (s *OrderService) ListByOwner(asset string, owner common.Address) ([]domain.Order, error) {
	m, err := s.desk.Market(asset)
	if err != nil {
		return nil, err
	}

	ids := m.OrdersFor(owner)
	orders := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		order, getErr := m.GetOrder(id)
		if getErr != nil {
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// ListByAsset returns orders for an asset from the journal, with pagination.
func (s *OrderService) ListByAsset(ctx context.Context, asset string, opts domain.ListOpts) ([]domain.Order, error) {
	if s.orders == nil {
		return nil, fmt.Errorf("order_service: list by asset %q: no order journal configured", asset)
	}
	orders, err := s.orders.ListByAsset(ctx, asset, opts)
	if err != nil {
		return nil, fmt.Errorf("order_service: list by asset %q: %w", asset, err)
	}
	return orders, nil
}

// ListFills returns the journaled fills for an order.
func (s *OrderService) ListFills(ctx context.Context, asset string, orderID uint64) ([]domain.Fill, error) {
	if s.fills == nil {
		return nil, fmt.Errorf("order_service: list fills for %s/%d: no fill journal configured", asset, orderID)
	}
	fills, err := s.fills.ListByOrder(ctx, asset, orderID)
	if err != nil {
		return nil, fmt.Errorf("order_service: list fills for %s/%d: %w", asset, orderID, err)
	}
	return fills, nil
}

// allow enforces the per-account request budget. A nil limiter disables
// rate limiting.
func (s *OrderService) allow(ctx context.Context, account common.Address) error {
	if s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, "orders:"+account.Hex(), 10, time.Second)
	if err != nil {
		return fmt.Errorf("order_service: rate limiter: %w", err)
	}
	if !allowed {
		return domain.ErrRateLimited
	}
	return nil
}

// publish sends the event on the signal bus. Delivery failures are logged,
// not propagated; the lifecycle transition has already committed.
func (s *OrderService) publish(ctx context.Context, evt domain.OrderEvent) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if pubErr := s.bus.Publish(ctx, ordersChannel, payload); pubErr != nil {
		s.logger.WarnContext(ctx, "order_service: publish event failed",
			slog.String("type", evt.Type),
			slog.Uint64("order_id", evt.OrderID),
			slog.String("error", pubErr.Error()),
		)
	}
}

// auditLog records the event in the audit store, logging failures.
func (s *OrderService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "order_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
