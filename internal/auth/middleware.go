package auth

import (
	"context"
	"net/http"
	"slices"
	"strings"
)

// contextKey is unexported so no other package can read or shadow the
// principal stored under it.
type contextKey string

const principalKey contextKey = "principal"

// RequireRole rejects requests without a valid token (401) or whose token
// role is not in roles (403). On success the Principal is stored in the
// request context.
//
// The token is read from "Authorization: Bearer <jwt>" first; browsers that
// went through the staff GitHub flow send it in the "token" cookie instead.
func RequireRole(tokens *TokenService, roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := extractPrincipal(r, tokens)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}
			if len(roles) > 0 && !slices.Contains(roles, p.Role) {
				writeAuthError(w, http.StatusForbidden, "forbidden", "this account cannot perform this action")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// WithPrincipal stores p in ctx. Exported for handler tests.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the caller set by RequireRole.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

func extractPrincipal(r *http.Request, tokens *TokenService) (*Principal, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			raw, ok = strings.CutPrefix(h, "bearer ")
		}
		if ok {
			return tokens.Validate(strings.TrimSpace(raw))
		}
	}

	cookie, err := r.Cookie("token")
	if err != nil {
		return nil, err
	}
	return tokens.Validate(cookie.Value)
}

func writeAuthError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + kind + `","message":"` + message + `"}`))
}
