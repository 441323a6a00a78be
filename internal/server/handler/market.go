package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowdesk/internal/domain"
)

// MarketService defines the methods that the market handler requires from
// the service layer.
type MarketService interface {
	Initialize(ctx context.Context, spec domain.Market) (domain.Market, error)
	Markets() []domain.Market
	Market(asset string) (domain.Market, error)
	FundPool(ctx context.Context, asset string, funder common.Address, units int64) error
	PoolBalances(asset string) (free, locked int64, err error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// listMarketsResponse wraps the list markets response.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
}

// ListMarkets returns all initialized markets.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := h.markets.Markets()
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: markets})
}

// GetMarket returns a single market by asset type.
// GET /api/markets/{asset}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	asset := pathParam(r, "asset")
	if asset == "" {
		writeError(w, http.StatusBadRequest, "missing asset")
		return
	}

	market, err := h.markets.Market(asset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

// createMarketRequest is the JSON body for market initialization.
type createMarketRequest struct {
	Asset              string `json:"asset"`
	Kind               string `json:"kind"`
	PoolFunder         string `json:"pool_funder"`
	AllowFinalBelowMin *bool  `json:"allow_final_below_min"`
}

// CreateMarket initializes a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.Asset == "" || req.Kind == "" {
		writeError(w, http.StatusBadRequest, "asset and kind are required")
		return
	}

	spec := domain.Market{
		Asset:              req.Asset,
		Kind:               domain.MarketKind(req.Kind),
		AllowFinalBelowMin: true,
	}
	if req.AllowFinalBelowMin != nil {
		spec.AllowFinalBelowMin = *req.AllowFinalBelowMin
	}
	if req.PoolFunder != "" {
		funder, err := parseAddress(req.PoolFunder)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		spec.PoolFunder = funder
	}

	market, err := h.markets.Initialize(r.Context(), spec)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create market failed",
			slog.String("asset", req.Asset),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// fundPoolRequest is the JSON body for pool funding.
type fundPoolRequest struct {
	Funder string `json:"funder"`
	Units  int64  `json:"units"`
}

// FundPool moves units from a funder's custody balance into the market pool.
// POST /api/markets/{asset}/fund
func (h *MarketHandler) FundPool(w http.ResponseWriter, r *http.Request) {
	asset := pathParam(r, "asset")
	if asset == "" {
		writeError(w, http.StatusBadRequest, "missing asset")
		return
	}

	var req fundPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	funder, err := parseAddress(req.Funder)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.markets.FundPool(r.Context(), asset, funder, req.Units); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "funded",
		"asset":  asset,
		"units":  req.Units,
	})
}

// GetPool returns the free and locked balances of a pooled market's ledger.
// GET /api/markets/{asset}/pool
func (h *MarketHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	asset := pathParam(r, "asset")
	if asset == "" {
		writeError(w, http.StatusBadRequest, "missing asset")
		return
	}

	free, locked, err := h.markets.PoolBalances(asset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"asset":  asset,
		"free":   free,
		"locked": locked,
	})
}
