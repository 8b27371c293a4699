package addresses

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/clockpay/backend/internal/middleware"
)

type AddAddressRequest struct {
	Address     string `json:"address"`
	CryptoType  string `json:"crypto_type"`
	Label       string `json:"label"`
	MakeDefault bool   `json:"make_default"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// AddAddress handles POST /v1/addresses.
func (h *Handler) AddAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req AddAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		http.Error(w, `{"error":"address is required"}`, http.StatusBadRequest)
		return
	}

	a, err := h.svc.AddAddress(r.Context(), id.AccountID, req.Address, req.CryptoType, req.Label, req.MakeDefault)
	if err != nil {
		if errors.Is(err, ErrInvalidAddress) {
			http.Error(w, `{"error":"address is not a valid ledger address"}`, http.StatusUnprocessableEntity)
			return
		}
		h.log.Error("add address failed", "error", err)
		http.Error(w, `{"error":"add address failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(a)
}

// ListAddresses handles GET /v1/addresses.
func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.svc.ListAddresses(r.Context(), id.AccountID)
	if err != nil {
		h.log.Error("list addresses failed", "error", err)
		http.Error(w, `{"error":"list addresses failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"addresses": list})
}

// SetDefault handles POST /v1/addresses/{id}/default.
func (h *Handler) SetDefault(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	addressID, ok := extractAddressID(r)
	if !ok {
		http.Error(w, `{"error":"invalid address id"}`, http.StatusBadRequest)
		return
	}

	if err := h.svc.SetDefault(r.Context(), id.AccountID, addressID); err != nil {
		if errors.Is(err, ErrNotOwned) {
			http.Error(w, `{"error":"address not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("set default address failed", "error", err)
		http.Error(w, `{"error":"set default failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// extractAddressID parses the address UUID from paths like
// /api/v1/addresses/{id}/default.
func extractAddressID(r *http.Request) (uuid.UUID, bool) {
	if raw := r.PathValue("id"); raw != "" {
		id, err := uuid.Parse(raw)
		return id, err == nil
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/addresses/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
