package router

import (
	"net/http"

	"github.com/clockpay/backend/internal/addresses"
	"github.com/clockpay/backend/internal/auth"
	"github.com/clockpay/backend/internal/dashboard"
	"github.com/clockpay/backend/internal/middleware"
)

// New returns an http.Handler serving the account and dashboard API under
// /api/v1. The auth endpoints are public; everything else goes through the
// bearer middleware.
func New(authHandler *auth.Handler, authSvc auth.Service, addrHandler *addresses.Handler, dashHandler *dashboard.Handler) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.HandleFunc(base+"/auth/register", authHandler.Register)
	mux.HandleFunc(base+"/auth/login", authHandler.Login)

	bearer := middleware.BearerAuth(authSvc)

	mux.Handle(base+"/addresses", bearer(addressesHandler(addrHandler)))
	mux.Handle("POST "+base+"/addresses/{id}/default", bearer(http.HandlerFunc(addrHandler.SetDefault)))

	mux.Handle("GET "+base+"/dashboard/summary", bearer(http.HandlerFunc(dashHandler.GetSummary)))
	mux.Handle("GET "+base+"/dashboard/audit", bearer(http.HandlerFunc(dashHandler.ListAuditLog)))
	mux.Handle("GET "+base+"/dashboard/rates", bearer(http.HandlerFunc(dashHandler.ListRateHistory)))
	mux.Handle("GET "+base+"/dashboard/wallets", bearer(http.HandlerFunc(dashHandler.ListWallets)))
	mux.Handle("POST "+base+"/dashboard/wallets", bearer(http.HandlerFunc(dashHandler.CreateWallet)))
	mux.Handle("GET "+base+"/dashboard/policy", bearer(http.HandlerFunc(dashHandler.GetPolicy)))
	mux.Handle("PUT "+base+"/dashboard/policy", bearer(http.HandlerFunc(dashHandler.UpsertPolicy)))

	return mux
}

func addressesHandler(h *addresses.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			h.AddAddress(w, r)
		case http.MethodGet:
			h.ListAddresses(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
