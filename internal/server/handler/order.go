package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowdesk/internal/domain"
	"github.com/alanyoungcy/escrowdesk/internal/engine"
)

// OrderService defines the methods that the order handler requires from the
// service layer.
type OrderService interface {
	CreateOrder(ctx context.Context, asset string, owner common.Address, terms engine.CreateTerms) (domain.Order, error)
	FillOrder(ctx context.Context, asset string, taker common.Address, id uint64, units int64, proof []byte) (domain.Order, domain.Fill, error)
	CancelOrder(ctx context.Context, asset string, caller common.Address, id uint64) (domain.Order, error)
	GetOrder(asset string, id uint64) (domain.Order, error)
	ListByOwner(asset string, owner common.Address) ([]domain.Order, error)
	ListByAsset(ctx context.Context, asset string, opts domain.ListOpts) ([]domain.Order, error)
	ListFills(ctx context.Context, asset string, orderID uint64) ([]domain.Fill, error)
}

// OrderHandler serves order-related HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// listOrdersResponse wraps the list orders response.
type listOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

// ListOrders returns the live orders an account owns, or the journaled
// orders for an asset with pagination.
// GET /api/orders?asset=...&owner=0x...&limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	asset := q.Get("asset")
	owner := q.Get("owner")

	if asset == "" {
		writeError(w, http.StatusBadRequest, "asset query parameter required")
		return
	}

	var orders []domain.Order
	var err error

	if owner != "" {
		addr, addrErr := parseAddress(owner)
		if addrErr != nil {
			writeError(w, http.StatusBadRequest, addrErr.Error())
			return
		}
		orders, err = h.orders.ListByOwner(asset, addr)
	} else {
		opts := parseListOpts(r)
		orders, err = h.orders.ListByAsset(r.Context(), asset, opts)
	}

	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("asset", asset),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	if orders == nil {
		orders = []domain.Order{}
	}

	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: orders})
}

// createOrderRequest is the JSON body for order creation.
type createOrderRequest struct {
	Asset         string `json:"asset"`
	Owner         string `json:"owner"`
	TotalUnits    int64  `json:"total_units"`
	MinFillUnits  int64  `json:"min_fill_units"`
	PriceTicks    int64  `json:"price_ticks"`
	FiatCurrency  string `json:"fiat_currency"`
	PaymentMethod string `json:"payment_method"`
}

// CreateOrder creates a new escrow-backed order.
// POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.Asset == "" || req.Owner == "" {
		writeError(w, http.StatusBadRequest, "asset and owner are required")
		return
	}

	owner, err := parseAddress(req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), req.Asset, owner, engine.CreateTerms{
		TotalUnits:   req.TotalUnits,
		MinFillUnits: req.MinFillUnits,
		Terms: domain.OrderTerms{
			PriceTicks:    req.PriceTicks,
			FiatCurrency:  req.FiatCurrency,
			PaymentMethod: req.PaymentMethod,
		},
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create order failed",
			slog.String("asset", req.Asset),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// GetOrder returns a single order by asset and id.
// GET /api/orders/{asset}/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	asset := pathParam(r, "asset")
	id, err := parseOrderID(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.orders.GetOrder(asset, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// fillOrderRequest is the JSON body for a fill attempt. Proof is base64.
type fillOrderRequest struct {
	Taker string `json:"taker"`
	Units int64  `json:"units"`
	Proof []byte `json:"proof"`
}

// fillOrderResponse carries the updated order and the accepted fill.
type fillOrderResponse struct {
	Order domain.Order `json:"order"`
	Fill  domain.Fill  `json:"fill"`
}

// FillOrder applies a proof-gated fill against an order.
// POST /api/orders/{asset}/{id}/fill
func (h *OrderHandler) FillOrder(w http.ResponseWriter, r *http.Request) {
	asset := pathParam(r, "asset")
	id, err := parseOrderID(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req fillOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	taker, err := parseAddress(req.Taker)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, fill, err := h.orders.FillOrder(r.Context(), asset, taker, id, req.Units, req.Proof)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: fill order failed",
			slog.String("asset", asset),
			slog.Uint64("order_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fillOrderResponse{Order: order, Fill: fill})
}

// cancelOrderRequest is the JSON body for cancellation.
type cancelOrderRequest struct {
	Caller string `json:"caller"`
}

// CancelOrder cancels an existing order. Only the owner may cancel.
// DELETE /api/orders/{asset}/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	asset := pathParam(r, "asset")
	id, err := parseOrderID(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req cancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.orders.CancelOrder(r.Context(), asset, caller, id)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: cancel order failed",
			slog.String("asset", asset),
			slog.Uint64("order_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// listFillsResponse wraps the list fills response.
type listFillsResponse struct {
	Fills []domain.Fill `json:"fills"`
}

// ListFills returns the journaled fills for an order.
// GET /api/orders/{asset}/{id}/fills
func (h *OrderHandler) ListFills(w http.ResponseWriter, r *http.Request) {
	asset := pathParam(r, "asset")
	id, err := parseOrderID(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fills, err := h.orders.ListFills(r.Context(), asset, id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list fills failed",
			slog.String("asset", asset),
			slog.Uint64("order_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	if fills == nil {
		fills = []domain.Fill{}
	}

	writeJSON(w, http.StatusOK, listFillsResponse{Fills: fills})
}
