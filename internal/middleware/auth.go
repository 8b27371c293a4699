package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/clockpay/backend/internal/auth"
)

type contextKey string

const ctxIdentityKey contextKey = "identity"

// BearerAuth authenticates requests by validating the Bearer token and
// placing the caller's Identity into request context.
func BearerAuth(authSvc auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			identity, err := authSvc.ValidateToken(r.Context(), raw)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxIdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects non-admin callers. Must run after BearerAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromCtx(r.Context())
		if !ok || !identity.IsAdmin() {
			http.Error(w, `{"error":"admin access required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFromCtx returns the authenticated identity, if any.
func IdentityFromCtx(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(ctxIdentityKey).(auth.Identity)
	return identity, ok
}

// WithIdentity returns a context carrying the given identity. Test helper.
func WithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey, identity)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
