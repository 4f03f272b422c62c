package api

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/kovnica/internal/chain"
	"github.com/erazemk/kovnica/internal/model"
	"github.com/erazemk/kovnica/internal/sale"
	"github.com/erazemk/kovnica/internal/store"
)

// MintVerifier confirms that a reported transaction minted an item.
type MintVerifier interface {
	MintedQuantity(ctx context.Context, txHash string, itemID int64, wallet string) (int64, error)
}

// SalesHandler serves reconciled sale state, eligibility and mint reports.
type SalesHandler struct {
	DB       *sql.DB
	Sales    *sale.Service
	Verifier MintVerifier
}

type reportMintRequest struct {
	Wallet string `json:"wallet"`
	TxHash string `json:"tx_hash"`
}

// Catalog handles GET /api/items.
func (h *SalesHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.Sales.Catalog(r.Context())
	if err != nil {
		slog.Error("failed to build catalog", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	jsonResponse(w, http.StatusOK, catalog)
}

// SaleState handles GET /api/items/{id}/sale.
func (h *SalesHandler) SaleState(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	state, err := h.Sales.SaleState(r.Context(), id)
	if err != nil {
		slog.Error("failed to reconcile sale", "item", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get sale state")
		return
	}
	jsonResponse(w, http.StatusOK, state)
}

// Eligibility handles GET /api/items/{id}/eligibility?address=.
func (h *SalesHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	quote, err := h.Sales.Quote(r.Context(), id, r.URL.Query().Get("address"))
	if errors.Is(err, sale.ErrInvalidAddress) {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to resolve eligibility", "item", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to resolve eligibility")
		return
	}
	jsonResponse(w, http.StatusOK, quote)
}

// ReportMint handles POST /api/items/{id}/mints. The transaction receipt is
// checked before the ledger is touched, so the recorded quantity is what
// the contract actually minted.
func (h *SalesHandler) ReportMint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	if h.Verifier == nil {
		jsonError(w, http.StatusServiceUnavailable, "chain access not configured")
		return
	}

	var req reportMintRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wallet, ok := model.NormalizeAddress(req.Wallet)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}
	txHash, ok := chain.NormalizeTxHash(req.TxHash)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid transaction hash")
		return
	}

	qty, err := h.Verifier.MintedQuantity(r.Context(), txHash, id, wallet)
	switch {
	case errors.Is(err, chain.ErrTxNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, chain.ErrTxFailed), errors.Is(err, chain.ErrNoMint):
		jsonError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		slog.Error("failed to verify mint", "item", id, "tx", txHash, "error", err)
		jsonError(w, http.StatusBadGateway, "failed to verify transaction")
		return
	}

	m, err := h.Sales.RecordMint(r.Context(), id, wallet, qty, txHash)
	if errors.Is(err, store.ErrMintAlreadyRecorded) {
		jsonError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to record mint", "item", id, "tx", txHash, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to record mint")
		return
	}
	jsonResponse(w, http.StatusCreated, m)
}

// ListMints handles GET /api/items/{id}/mints.
func (h *SalesHandler) ListMints(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	mints, err := store.ListMints(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to list mints", "item", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list mints")
		return
	}
	if mints == nil {
		mints = []model.Mint{}
	}
	jsonResponse(w, http.StatusOK, mints)
}

// GetOverride handles GET /api/items/{id}/override. Items never configured
// return the default override.
func (h *SalesHandler) GetOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	o, err := store.GetOverride(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get override", "item", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get override")
		return
	}
	if o == nil {
		d := model.DefaultOverride(id)
		o = &d
	}
	jsonResponse(w, http.StatusOK, o)
}

// PutOverride handles PUT /api/items/{id}/override.
func (h *SalesHandler) PutOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var o model.Override
	if err := decodeJSON(r, &o); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	o.ItemID = id
	if o.CustomCurrency != nil && strings.TrimSpace(*o.CustomCurrency) == "" {
		o.CustomCurrency = nil
	}
	if o.CustomCurrency != nil {
		addr, ok := model.NormalizeAddress(*o.CustomCurrency)
		if ok {
			o.CustomCurrency = &addr
		}
	}
	if err := store.ValidateOverride(o); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := store.PutOverride(r.Context(), h.DB, o)
	if err != nil {
		slog.Error("failed to save override", "item", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to save override")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("override saved", "user", claims.Username, "item", id)
	jsonResponse(w, http.StatusOK, saved)
}
