package middleware

import (
	"context"
	"net/http"
	"strings"

	"vet-appointments/internal/domain/clinic"
	"vet-appointments/internal/platform/logger"
	"vet-appointments/internal/ports/auth"
)

type ctxKey string

const (
	claimsKey    ctxKey = "claims"
	requesterKey ctxKey = "requester"
)

// RequesterResolver convierte claims en el Requester (id + rol) que consume el core.
type RequesterResolver interface {
	Resolve(ctx context.Context, claims auth.Claims) (clinic.Requester, error)
}

// AuthContext:
//   - verifier != nil y Bearer token => Verify() y setea claims.
//   - verifier == nil => modo dev: X-Debug-User-ID (y opcional X-Debug-User-Email).
//   - Con claims, resolver busca al usuario y setea el Requester.
//
// Nunca corta el request: los handlers deciden 401/403.
func AuthContext(verifier auth.AuthVerifier, resolver RequesterResolver, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := claimsFrom(r, verifier)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			if resolver != nil {
				req, err := resolver.Resolve(ctx, claims)
				if err == nil {
					ctx = context.WithValue(ctx, requesterKey, req)
				} else if log != nil {
					log.Warn("requester not resolved", map[string]any{"user_id": claims.UserID, "err": err})
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func claimsFrom(r *http.Request, verifier auth.AuthVerifier) (auth.Claims, bool) {
	if verifier == nil {
		uid := strings.TrimSpace(r.Header.Get("X-Debug-User-ID"))
		if uid == "" {
			return auth.Claims{}, false
		}
		return auth.Claims{
			UserID: uid,
			Email:  strings.TrimSpace(r.Header.Get("X-Debug-User-Email")),
		}, true
	}

	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return auth.Claims{}, false
	}
	claims, err := verifier.Verify(r.Context(), token)
	if err != nil {
		return auth.Claims{}, false
	}
	return claims, true
}

func GetClaims(ctx context.Context) (auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(auth.Claims)
	return c, ok
}

func GetRequester(ctx context.Context) (clinic.Requester, bool) {
	r, ok := ctx.Value(requesterKey).(clinic.Requester)
	if !ok || strings.TrimSpace(r.UserID) == "" {
		return clinic.Requester{}, false
	}
	return r, true
}

// WithRequester es para tests de handlers.
func WithRequester(ctx context.Context, r clinic.Requester) context.Context {
	return context.WithValue(ctx, requesterKey, r)
}

func bearerToken(authHeader string) string {
	parts := strings.SplitN(strings.TrimSpace(authHeader), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
