package main

import (
	"log/slog"
	"net/http"

	"github.com/clockpay/backend/internal/auth"
	"github.com/clockpay/backend/internal/middleware"
	"github.com/clockpay/backend/internal/settlement"
)

// RegisterV1Routes adds the /v1/payments endpoints to the given mux.
// Middleware chain: BearerAuth -> (RequireAdmin on admin operations) -> handler.
func RegisterV1Routes(
	mux *http.ServeMux,
	svc *settlement.Service,
	lister settlement.PaymentLister,
	sessions settlement.SessionSource,
	validator *settlement.RequestValidator,
	authSvc auth.Service,
	logger *slog.Logger,
) {
	h := &settlement.Handler{
		Service:   svc,
		Lister:    lister,
		Sessions:  sessions,
		Validator: validator,
		Logger:    logger,
	}

	bearer := middleware.BearerAuth(authSvc)
	admin := func(next http.HandlerFunc) http.Handler {
		return bearer(middleware.RequireAdmin(next))
	}

	// POST /v1/payments — worker self-service settlement
	mux.Handle("POST /v1/payments", bearer(http.HandlerFunc(h.ReceivePayment)))

	// GET /v1/payments and /v1/payments/{id} — listings (workers see their own)
	mux.Handle("GET /v1/payments", bearer(http.HandlerFunc(h.ListPayments)))
	mux.Handle("GET /v1/payments/{id}", bearer(http.HandlerFunc(h.GetPayment)))

	// GET /v1/sessions — the caller's approved, still-unclaimed work sessions
	mux.Handle("GET /v1/sessions", bearer(http.HandlerFunc(h.ListApprovedSessions)))

	// Admin operations on the payment lifecycle
	mux.Handle("POST /v1/payments/approve", admin(h.ApprovePayment))
	mux.Handle("POST /v1/payments/{id}/execute", admin(h.ExecutePayment))
	mux.Handle("POST /v1/payments/{id}/complete", admin(h.CompleteManualPayment))
	mux.Handle("POST /v1/payments/{id}/cancel", admin(h.CancelPayment))
}
