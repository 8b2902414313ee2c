package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDHeader optionally repeats the token's user id; when present it
// must match.
const UserIDHeader = "userid"

// AuthMiddleware authenticates the bearer token and stores the caller's
// user id on the request context.
func (a *API) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if authz == "" {
			a.audit.logFailure(AuditAuthFailure, r, "missing token")
			writeError(w, http.StatusUnauthorized, "Access token is missing")
			return
		}
		scheme, token, ok := strings.Cut(authz, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			a.audit.logFailure(AuditAuthFailure, r, "malformed authorization header")
			writeError(w, http.StatusUnauthorized, "Authentication error")
			return
		}

		claims, err := a.tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			a.audit.logFailure(AuditAuthFailure, r, err.Error())
			if errors.Is(err, ErrExpiredToken) {
				writeError(w, http.StatusUnauthorized, "Expired token")
				return
			}
			writeError(w, http.StatusUnauthorized, "Authentication error")
			return
		}

		if hdr := r.Header.Get(UserIDHeader); hdr != "" && hdr != claims.UserID {
			a.audit.logFailure(AuditAuthFailure, r, "user id mismatch", slog.String("user_id", claims.UserID))
			writeError(w, http.StatusForbidden, "Authorization error")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// requestIsSecure reports whether the request arrived over TLS, directly or
// through a proxy that says so.
func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
