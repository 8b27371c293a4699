package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/clockpay/backend/internal/gateway"
	"github.com/clockpay/backend/internal/middleware"
	"github.com/clockpay/backend/internal/models"
	"github.com/clockpay/backend/internal/risk"
)

// maxBodyBytes caps request bodies; payment payloads are small.
const maxBodyBytes = 64 << 10

// PaymentLister serves the read-side listing endpoints.
type PaymentLister interface {
	ListByOrganization(ctx context.Context, organizationID uuid.UUID, status string) ([]*models.PaymentRequest, error)
	GetByID(ctx context.Context, id, organizationID uuid.UUID) (*models.PaymentRequest, error)
}

// SessionSource serves the work-session read endpoints.
type SessionSource interface {
	ListApprovedByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.WorkSession, error)
	ListByPaymentRequest(ctx context.Context, paymentRequestID uuid.UUID) ([]*models.WorkSession, error)
}

// Handler serves the /v1/payments endpoints.
type Handler struct {
	Service   *Service
	Lister    PaymentLister
	Sessions  SessionSource
	Validator *RequestValidator
	Logger    *slog.Logger
}

// --- POST /v1/payments ---

type receivePaymentRequest struct {
	WorkSessionIDs []string `json:"work_session_ids"`
	CryptoType     string   `json:"crypto_type"`
}

type receiptResponse struct {
	PaymentRequestID      string  `json:"payment_request_id"`
	TransactionHash       *string `json:"transaction_hash,omitempty"`
	AmountUSD             string  `json:"amount_usd"`
	CryptoRate            string  `json:"crypto_rate"`
	CryptoAmount          string  `json:"crypto_amount"`
	DestinationAddress    string  `json:"destination_address"`
	RequiresManualSigning bool    `json:"requires_manual_signing"`
	Status                string  `json:"status"`
}

// ReceivePayment handles POST /v1/payments — the worker self-service
// settlement entry point.
func (h *Handler) ReceivePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	req, ok := h.decode(w, r, "receive_payment")
	if !ok {
		return
	}
	var in receivePaymentRequest
	if err := json.Unmarshal(req, &in); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	sessionIDs, err := parseUUIDs(in.WorkSessionIDs)
	if err != nil {
		http.Error(w, `{"error":"invalid work_session_ids"}`, http.StatusBadRequest)
		return
	}

	receipt, err := h.Service.ReceivePayment(r.Context(), id.AccountID, id.OrganizationID, sessionIDs, in.CryptoType)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceiptResponse(receipt))
}

// --- POST /v1/payments/approve ---

type approvePaymentRequest struct {
	WorkerID       string   `json:"worker_id"`
	WorkSessionIDs []string `json:"work_session_ids"`
	CryptoType     string   `json:"crypto_type"`
}

// ApprovePayment handles POST /v1/payments/approve — admin pre-authorization.
func (h *Handler) ApprovePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok || !id.IsAdmin() {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return
	}

	req, ok := h.decode(w, r, "approve_payment")
	if !ok {
		return
	}
	var in approvePaymentRequest
	if err := json.Unmarshal(req, &in); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	workerID, err := uuid.Parse(in.WorkerID)
	if err != nil {
		http.Error(w, `{"error":"invalid worker_id"}`, http.StatusBadRequest)
		return
	}
	sessionIDs, err := parseUUIDs(in.WorkSessionIDs)
	if err != nil {
		http.Error(w, `{"error":"invalid work_session_ids"}`, http.StatusBadRequest)
		return
	}

	receipt, err := h.Service.ApprovePayment(r.Context(), id.AccountID, id.OrganizationID, workerID, sessionIDs, in.CryptoType)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceiptResponse(receipt))
}

// --- POST /v1/payments/{id}/execute ---

// ExecutePayment handles POST /v1/payments/{id}/execute — release a PENDING
// request.
func (h *Handler) ExecutePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok || !id.IsAdmin() {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return
	}
	paymentID, ok := extractPaymentID(r)
	if !ok {
		http.Error(w, `{"error":"invalid payment id"}`, http.StatusBadRequest)
		return
	}

	receipt, err := h.Service.ExecutePayment(r.Context(), paymentID, id.OrganizationID, id.AccountID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptResponse(receipt))
}

// --- POST /v1/payments/{id}/complete ---

type completeManualRequest struct {
	TransactionHash string `json:"transaction_hash"`
}

// CompleteManualPayment handles POST /v1/payments/{id}/complete — records the
// client-signed transaction hash for a manual-signing request.
func (h *Handler) CompleteManualPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok || !id.IsAdmin() {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return
	}
	paymentID, ok := extractPaymentID(r)
	if !ok {
		http.Error(w, `{"error":"invalid payment id"}`, http.StatusBadRequest)
		return
	}

	req, ok := h.decode(w, r, "complete_manual_payment")
	if !ok {
		return
	}
	var in completeManualRequest
	if err := json.Unmarshal(req, &in); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	if err := h.Service.CompleteManualPayment(r.Context(), paymentID, id.OrganizationID, id.AccountID, strings.ToUpper(in.TransactionHash)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.PaymentStatusCompleted})
}

// --- POST /v1/payments/{id}/cancel ---

// CancelPayment handles POST /v1/payments/{id}/cancel.
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok || !id.IsAdmin() {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return
	}
	paymentID, ok := extractPaymentID(r)
	if !ok {
		http.Error(w, `{"error":"invalid payment id"}`, http.StatusBadRequest)
		return
	}

	if err := h.Service.CancelPayment(r.Context(), paymentID, id.OrganizationID, id.AccountID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.PaymentStatusCancelled})
}

// --- GET /v1/payments and GET /v1/payments/{id} ---

// ListPayments handles GET /v1/payments?status=PENDING.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	status := r.URL.Query().Get("status")
	payments, err := h.Lister.ListByOrganization(r.Context(), id.OrganizationID, status)
	if err != nil {
		h.Logger.Error("list payments", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	// Workers only see their own requests.
	if !id.IsAdmin() {
		own := payments[:0]
		for _, p := range payments {
			if p.WorkerID == id.AccountID {
				own = append(own, p)
			}
		}
		payments = own
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

// GetPayment handles GET /v1/payments/{id}.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	paymentID, ok := extractPaymentID(r)
	if !ok {
		http.Error(w, `{"error":"invalid payment id"}`, http.StatusBadRequest)
		return
	}

	p, err := h.Lister.GetByID(r.Context(), paymentID, id.OrganizationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, `{"error":"payment request not found"}`, http.StatusNotFound)
			return
		}
		h.Logger.Error("get payment", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !id.IsAdmin() && p.WorkerID != id.AccountID {
		http.Error(w, `{"error":"payment request not found"}`, http.StatusNotFound)
		return
	}
	sessions, err := h.Sessions.ListByPaymentRequest(r.Context(), p.ID)
	if err != nil {
		h.Logger.Error("list payment sessions", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment": p, "work_sessions": sessions})
}

// ListApprovedSessions handles GET /v1/sessions — the approved, unclaimed
// work sessions the caller can settle.
func (h *Handler) ListApprovedSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	sessions, err := h.Sessions.ListApprovedByWorker(r.Context(), id.AccountID)
	if err != nil {
		h.Logger.Error("list approved sessions", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"work_sessions": sessions})
}

// --- helpers ---

// decode reads the body, schema-validates it and hands back the raw bytes.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, schema string) (json.RawMessage, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
		return nil, false
	}
	if err := h.Validator.Validate(schema, body); err != nil {
		if errors.Is(err, ErrValidation) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return nil, false
		}
		h.Logger.Error("validate request", "schema", schema, "error", err)
		http.Error(w, `{"error":"request validation failed"}`, http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

// writeServiceError maps orchestrator errors onto HTTP statuses. Risk and
// eligibility failures are client errors; gateway failures mean the transfer
// itself failed after a request row was written.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		elig         *EligibilityError
		countLimit   *risk.CountLimitError
		amountLimit  *risk.AmountLimitError
		addrLock     *risk.AddressLockError
		insufficient *risk.InsufficientBalanceError
		payErr       *gateway.PaymentError
	)
	switch {
	case errors.As(err, &elig):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": elig.Error(), "code": "NOT_ELIGIBLE"})
	case errors.As(err, &countLimit):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": countLimit.Error(), "code": "DAILY_COUNT_LIMIT"})
	case errors.As(err, &amountLimit):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": amountLimit.Error(), "code": "DAILY_AMOUNT_LIMIT"})
	case errors.As(err, &addrLock):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": addrLock.Error(), "code": "ADDRESS_LOCKED"})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": insufficient.Error(), "code": "INSUFFICIENT_BALANCE"})
	case errors.Is(err, gateway.ErrInvalidDestination):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "destination address is not valid on the ledger", "code": "INVALID_DESTINATION"})
	case errors.Is(err, gateway.ErrTrustlineMissing):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "destination has no usable trustline for the token", "code": "TRUSTLINE_MISSING"})
	case errors.Is(err, ErrNoWallet):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "organization has no active payer wallet", "code": "NO_WALLET"})
	case errors.Is(err, ErrNoDestinationAddress):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "worker has no default destination address", "code": "NO_DESTINATION"})
	case errors.Is(err, ErrNoTokenConfig):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "no issued-token configuration for this organization", "code": "NO_TOKEN_CONFIG"})
	case errors.Is(err, ErrNotFound):
		http.Error(w, `{"error":"payment request not found"}`, http.StatusNotFound)
	case errors.Is(err, ErrNotPending):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "payment request is not pending", "code": "NOT_PENDING"})
	case errors.As(err, &payErr):
		h.Logger.Error("ledger transfer failed", "path", r.URL.Path, "code", payErr.Code, "error", payErr.Message)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": payErr.Error(), "code": payErr.Code})
	default:
		h.Logger.Error("settlement failed", "path", r.URL.Path, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

func toReceiptResponse(rc *Receipt) receiptResponse {
	resp := receiptResponse{
		PaymentRequestID:      rc.PaymentRequestID.String(),
		TransactionHash:       rc.TransactionHash,
		AmountUSD:             rc.AmountUSD.StringFixed(2),
		CryptoRate:            rc.CryptoRate.String(),
		CryptoAmount:          rc.CryptoAmount.String(),
		DestinationAddress:    rc.DestinationAddress,
		RequiresManualSigning: rc.RequiresManualSigning,
	}
	if rc.RequiresManualSigning {
		resp.Status = models.PaymentStatusPending
	} else {
		resp.Status = models.PaymentStatusCompleted
	}
	return resp
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// extractPaymentID parses the payment UUID from paths like
// /v1/payments/{id} and /v1/payments/{id}/execute.
func extractPaymentID(r *http.Request) (uuid.UUID, bool) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/payments/")
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

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
