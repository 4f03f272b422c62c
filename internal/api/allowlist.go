package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/kovnica/internal/allowlist"
	"github.com/erazemk/kovnica/internal/model"
	"github.com/erazemk/kovnica/internal/sale"
	"github.com/erazemk/kovnica/internal/store"
)

const maxAllowlistUpload = 10 << 20

// AllowlistHandler manages the allowlist and serves membership proofs.
type AllowlistHandler struct {
	DB    *sql.DB
	Sales *sale.Service
}

type rootResponse struct {
	Root    string `json:"root"`
	Entries int    `json:"entries"`
	Version int64  `json:"version"`
}

type proofResponse struct {
	Address       string   `json:"address"`
	Allowlisted   bool     `json:"allowlisted"`
	MaxMintAmount int64    `json:"max_mint_amount"`
	Proof         []string `json:"proof"`
}

// Root handles GET /api/allowlist/root.
func (h *AllowlistHandler) Root(w http.ResponseWriter, r *http.Request) {
	version, err := store.AllowlistVersion(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to read allowlist version", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to build tree")
		return
	}
	tree, err := h.Sales.Tree(r.Context())
	if err != nil {
		slog.Error("failed to build allowlist tree", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to build tree")
		return
	}
	jsonResponse(w, http.StatusOK, rootResponse{Root: tree.Root().Hex(), Entries: tree.Len(), Version: version})
}

// Proof handles GET /api/allowlist/proof?address=.
func (h *AllowlistHandler) Proof(w http.ResponseWriter, r *http.Request) {
	proof, ok, err := h.Sales.Proof(r.Context(), r.URL.Query().Get("address"))
	if errors.Is(err, sale.ErrInvalidAddress) {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to build proof", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to build proof")
		return
	}

	addr, _ := model.NormalizeAddress(r.URL.Query().Get("address"))
	resp := proofResponse{Address: addr, Allowlisted: ok, Proof: []string{}}
	if ok {
		resp.Proof = proof
		entry, err := store.GetAllowlistEntry(r.Context(), h.DB, addr)
		if err != nil {
			slog.Error("failed to get allowlist entry", "error", err)
			jsonError(w, http.StatusInternalServerError, "failed to build proof")
			return
		}
		if entry != nil {
			resp.MaxMintAmount = entry.MaxMintAmount
		}
	}
	jsonResponse(w, http.StatusOK, resp)
}

// List handles GET /api/allowlist.
func (h *AllowlistHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := store.ListAllowlist(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to list allowlist", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list allowlist")
		return
	}
	if entries == nil {
		entries = []model.AllowlistEntry{}
	}
	jsonResponse(w, http.StatusOK, entries)
}

// Upload handles PUT /api/allowlist. The multipart "file" field holds a CSV
// or XLSX table that replaces the whole allowlist.
func (h *AllowlistHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAllowlistUpload)
	if err := r.ParseMultipartForm(maxAllowlistUpload); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "file field required")
		return
	}
	defer file.Close()

	entries, err := allowlist.Parse(file, allowlist.FormatFromName(header.Filename))
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	version, err := store.ReplaceAllowlist(r.Context(), h.DB, entries)
	if err != nil {
		slog.Error("failed to replace allowlist", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to save allowlist")
		return
	}

	tree, err := h.Sales.Tree(r.Context())
	if err != nil {
		slog.Error("failed to build allowlist tree", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to build tree")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("allowlist replaced", "user", claims.Username, "entries", len(entries), "version", version)
	jsonResponse(w, http.StatusOK, rootResponse{Root: tree.Root().Hex(), Entries: tree.Len(), Version: version})
}
