package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clockpay/backend/internal/gateway"
	"github.com/clockpay/backend/internal/middleware"
	"github.com/clockpay/backend/internal/models"
)

// Payments is the read-side payment surface the dashboard needs.
type Payments interface {
	ListByOrganization(ctx context.Context, organizationID uuid.UUID, status string) ([]*models.PaymentRequest, error)
	CountProcessedToday(ctx context.Context, organizationID uuid.UUID) (int, error)
	SumProcessedTodayUSD(ctx context.Context, organizationID uuid.UUID) (decimal.Decimal, error)
}

// Audits reads the append-only payment audit log.
type Audits interface {
	ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*models.PaymentAuditEvent, error)
	ListByPaymentRequest(ctx context.Context, paymentRequestID uuid.UUID) ([]*models.PaymentAuditEvent, error)
}

// Rates reads the recorded exchange-rate history.
type Rates interface {
	ListByOrganization(ctx context.Context, organizationID uuid.UUID, limit int) ([]*models.RateSample, error)
}

// Wallets lists and registers the organization's payer wallets.
type Wallets interface {
	ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*models.Wallet, error)
	Create(ctx context.Context, w *models.Wallet) error
}

// Policies reads and writes the per-organization risk policy.
type Policies interface {
	GetByOrganization(ctx context.Context, organizationID uuid.UUID) (*models.CryptoSetting, error)
	Upsert(ctx context.Context, s *models.CryptoSetting) error
}

// Sealer encrypts a hot wallet's signing secret before it touches the
// database.
type Sealer interface {
	Seal(secret string) (string, error)
}

// Handler serves the admin oversight endpoints under /api/v1/dashboard.
type Handler struct {
	payments Payments
	audits   Audits
	rates    Rates
	wallets  Wallets
	policies Policies
	sealer   Sealer
	log      *slog.Logger
}

func NewHandler(payments Payments, audits Audits, rates Rates, wallets Wallets, policies Policies, sealer Sealer, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{payments: payments, audits: audits, rates: rates, wallets: wallets, policies: policies, sealer: sealer, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return uuid.Nil, false
	}
	if !id.IsAdmin() {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return uuid.Nil, false
	}
	return id.OrganizationID, true
}

// GetSummary handles GET /api/v1/dashboard/summary — today's settlement
// volume against the daily limits.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.admin(w, r)
	if !ok {
		return
	}
	count, err := h.payments.CountProcessedToday(r.Context(), orgID)
	if err != nil {
		h.log.Error("dashboard count", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	sum, err := h.payments.SumProcessedTodayUSD(r.Context(), orgID)
	if err != nil {
		h.log.Error("dashboard sum", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	pending, err := h.payments.ListByOrganization(r.Context(), orgID, models.PaymentStatusPending)
	if err != nil {
		h.log.Error("dashboard pending", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"payments_today":   count,
		"amount_today_usd": sum.StringFixed(2),
		"pending_requests": len(pending),
	})
}

// ListAuditLog handles GET /api/v1/dashboard/audit. An optional
// ?payment_request_id= narrows the trail to one request.
func (h *Handler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.admin(w, r)
	if !ok {
		return
	}
	if raw := r.URL.Query().Get("payment_request_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, `{"error":"invalid payment_request_id"}`, http.StatusBadRequest)
			return
		}
		events, err := h.audits.ListByPaymentRequest(r.Context(), id)
		if err != nil {
			h.log.Error("dashboard audit by request", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		// The audit log is org-scoped; don't leak another org's trail.
		scoped := events[:0]
		for _, e := range events {
			if e.OrganizationID == orgID {
				scoped = append(scoped, e)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": scoped})
		return
	}

	events, err := h.audits.ListByOrganization(r.Context(), orgID)
	if err != nil {
		h.log.Error("dashboard audit", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// ListRateHistory handles GET /api/v1/dashboard/rates?limit=50.
func (h *Handler) ListRateHistory(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.admin(w, r)
	if !ok {
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			http.Error(w, `{"error":"limit must be 1-500"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}
	samples, err := h.rates.ListByOrganization(r.Context(), orgID, limit)
	if err != nil {
		h.log.Error("dashboard rates", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rates": samples})
}

// ListWallets handles GET /api/v1/dashboard/wallets. Secrets never leave the
// models layer.
func (h *Handler) ListWallets(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.admin(w, r)
	if !ok {
		return
	}
	wallets, err := h.wallets.ListByOrganization(r.Context(), orgID)
	if err != nil {
		h.log.Error("dashboard wallets", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallets": wallets})
}

// --- wallets and policy administration ---

type createWalletRequest struct {
	Address               string `json:"address"`
	Secret                string `json:"secret,omitempty"`
	RequiresManualSigning bool   `json:"requires_manual_signing"`
	MakeDefault           bool   `json:"make_default"`
}

// CreateWallet handles POST /api/v1/dashboard/wallets. A provided secret is
// sealed before it is stored; a wallet without one can only run in
// manual-signing mode.
func (h *Handler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.admin(w, r)
	if !ok {
		return
	}
	var req createWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if !gateway.IsValidAddress(strings.TrimSpace(req.Address)) {
		http.Error(w, `{"error":"address is not a valid ledger address"}`, http.StatusUnprocessableEntity)
		return
	}
	if req.Secret == "" && !req.RequiresManualSigning {
		http.Error(w, `{"error":"a wallet without a secret must require manual signing"}`, http.StatusBadRequest)
		return
	}

	wallet := &models.Wallet{
		ID:                    uuid.New(),
		OrganizationID:        orgID,
		Address:               strings.TrimSpace(req.Address),
		RequiresManualSigning: req.RequiresManualSigning,
		IsDefault:             req.MakeDefault,
		IsActive:              true,
	}
	if req.Secret != "" {
		sealed, err := h.sealer.Seal(req.Secret)
		if err != nil {
			h.log.Error("seal wallet secret", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		wallet.SecretCiphertext = &sealed
	}

	if err := h.wallets.Create(r.Context(), wallet); err != nil {
		h.log.Error("create wallet", "error", err)
		http.Error(w, `{"error":"create wallet failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, wallet)
}

// GetPolicy handles GET /api/v1/dashboard/policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.admin(w, r)
	if !ok {
		return
	}
	policy, err := h.policies.GetByOrganization(r.Context(), orgID)
	if err != nil {
		h.log.Error("get policy", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if policy == nil {
		http.Error(w, `{"error":"no policy configured"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

type upsertPolicyRequest struct {
	DailyPaymentLimit   int     `json:"daily_payment_limit"`
	DailyAmountLimitUSD *string `json:"daily_amount_limit_usd"`
	NewAddressLockHours int     `json:"new_address_lock_hours"`
}

// UpsertPolicy handles PUT /api/v1/dashboard/policy.
func (h *Handler) UpsertPolicy(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.admin(w, r)
	if !ok {
		return
	}
	var req upsertPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.DailyPaymentLimit < 0 || req.NewAddressLockHours < 0 {
		http.Error(w, `{"error":"limits must not be negative"}`, http.StatusBadRequest)
		return
	}
	policy := &models.CryptoSetting{
		ID:                  uuid.New(),
		OrganizationID:      orgID,
		DailyPaymentLimit:   req.DailyPaymentLimit,
		NewAddressLockHours: req.NewAddressLockHours,
	}
	if req.DailyAmountLimitUSD != nil {
		amt, err := decimal.NewFromString(*req.DailyAmountLimitUSD)
		if err != nil || amt.IsNegative() {
			http.Error(w, `{"error":"daily_amount_limit_usd must be a non-negative decimal"}`, http.StatusBadRequest)
			return
		}
		policy.DailyAmountLimitUSD = &amt
	}

	if err := h.policies.Upsert(r.Context(), policy); err != nil {
		h.log.Error("upsert policy", "error", err)
		http.Error(w, `{"error":"upsert policy failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}
