package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/consultia/clinic-agent/internal/staff"
	"github.com/consultia/clinic-agent/internal/tenancy"
)

type contextKey string

const staffClaimsKey contextKey = "staffClaims"

// StaffJWT enforces an HMAC-signed dashboard token and scopes the request
// to the tenant named in its claims.
func StaffJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeError(w, http.StatusUnauthorized, "Autenticación deshabilitada")
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "Token requerido")
				return
			}
			claims, err := staff.ParseToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil || strings.TrimSpace(claims.TenantID) == "" {
				writeError(w, http.StatusForbidden, "Token inválido o expirado")
				return
			}
			ctx := context.WithValue(r.Context(), staffClaimsKey, claims)
			ctx = tenancy.WithTenantID(ctx, claims.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects staff tokens without the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := StaffClaimsFromContext(r.Context())
		if !ok || !claims.IsAdmin() {
			writeError(w, http.StatusForbidden, "Solo admins pueden realizar esta acción")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StaffClaimsFromContext returns the dashboard token claims if present.
func StaffClaimsFromContext(ctx context.Context) (*staff.Claims, bool) {
	claims, ok := ctx.Value(staffClaimsKey).(*staff.Claims)
	return claims, ok && claims != nil
}

// WithStaffClaims stores claims the way StaffJWT does; handlers use it in tests.
func WithStaffClaims(ctx context.Context, claims *staff.Claims) context.Context {
	ctx = context.WithValue(ctx, staffClaimsKey, claims)
	if claims != nil {
		ctx = tenancy.WithTenantID(ctx, claims.TenantID)
	}
	return ctx
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
