package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	h "youthexchange/internal/delivery/http/helpers"
	"youthexchange/internal/domain"
)

type contextKey string

const (
	claimsKey contextKey = "claims"
	tokenKey  contextKey = "token"
)

// Authenticator resolves a bearer token into the claims of the signed-in principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Claims, error)
}

// SetClaims returns a context carrying the authenticated principal and its raw token.
func SetClaims(ctx context.Context, claims *domain.Claims, token string) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	return context.WithValue(ctx, tokenKey, token)
}

// ClaimsFromContext returns the authenticated principal's claims, if present.
func ClaimsFromContext(ctx context.Context) (*domain.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*domain.Claims)
	return c, ok && c != nil
}

// UserIDFromContext returns the authenticated principal ID from the context, if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	c, ok := ClaimsFromContext(ctx)
	if !ok || c.PrincipalID == "" {
		return "", false
	}
	return c.PrincipalID, true
}

// TokenFromContext returns the bearer token the request was authenticated with.
func TokenFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenKey).(string)
	return t, ok && t != ""
}

// RequireAuth returns a wrapper that validates the Bearer token and stores the claims in the request context.
// If the token is missing or invalid, it responds with 401 and does not call next.
func RequireAuth(auth Authenticator, logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "missing authorization header")
				return
			}
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "invalid authorization format")
				return
			}
			token := strings.TrimSpace(header[len(prefix):])
			if token == "" {
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "missing token")
				return
			}
			claims, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				status, code, _ := h.GuestError(err)
				if status == http.StatusServiceUnavailable {
					logger.WarnContext(r.Context(), "authentication unavailable", "err", err)
					h.WriteJSONError(w, status, code, "authentication temporarily unavailable")
					return
				}
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "invalid or expired token")
				return
			}
			r = r.WithContext(SetClaims(r.Context(), claims, token))
			next(w, r)
		}
	}
}

// RequireRole wraps next so that it only runs for principals holding role. It must run inside
// RequireAuth.
func RequireRole(role string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "unauthorized")
				return
			}
			if !slices.Contains(claims.Roles, role) {
				h.WriteJSONError(w, http.StatusForbidden, h.ErrCodeForbidden, "requires role "+role)
				return
			}
			next(w, r)
		}
	}
}
