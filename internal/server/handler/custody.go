package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// CustodyService defines the custody operations the handler requires.
type CustodyService interface {
	Deposit(ctx context.Context, account common.Address, units int64) error
	Balance(account common.Address) int64
}

// CustodyHandler serves custody balance endpoints.
type CustodyHandler struct {
	custody CustodyService
	logger  *slog.Logger
}

// NewCustodyHandler creates a CustodyHandler with the given service and logger.
func NewCustodyHandler(custody CustodyService, logger *slog.Logger) *CustodyHandler {
	return &CustodyHandler{
		custody: custody,
		logger:  logger,
	}
}

// depositRequest is the JSON body for a custody deposit.
type depositRequest struct {
	Account string `json:"account"`
	Units   int64  `json:"units"`
}

// Deposit credits units to an account's custody balance.
// POST /api/custody/deposit
func (h *CustodyHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	account, err := parseAddress(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.custody.Deposit(r.Context(), account, req.Units); err != nil {
		h.logger.WarnContext(r.Context(), "handler: deposit failed",
			slog.String("account", account.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account": account.Hex(),
		"balance": h.custody.Balance(account),
	})
}

// GetBalance returns an account's custody balance.
// GET /api/custody/{account}/balance
func (h *CustodyHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(pathParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account": account.Hex(),
		"balance": h.custody.Balance(account),
	})
}
