package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/folioworks/vitae/internal/httputil"
)

// Middleware returns a chi middleware that authenticates requests via
// Bearer session token.
func Middleware(store SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteAuthError(w, reqID, "Missing Authorization header. Use: Authorization: Bearer <session-token>")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				httputil.WriteAuthError(w, reqID, "Invalid Authorization format. Use: Authorization: Bearer <session-token>")
				return
			}
			if token == "" {
				httputil.WriteAuthError(w, reqID, "Empty session token")
				return
			}

			meta, err := store.Lookup(r.Context(), HashToken(token))
			if err != nil {
				slog.Error("session lookup failed", "error", err, "token_prefix", safePrefix(token))
				httputil.WriteInternalError(w, reqID, "Internal error during authentication")
				return
			}
			if meta == nil {
				slog.Warn("auth failed: session not found", "token_prefix", safePrefix(token))
				httputil.WriteAuthError(w, reqID, "Invalid or expired session")
				return
			}

			info := &UserInfo{
				SessionID: meta.ID,
				UserID:    meta.UserID,
				Email:     meta.Email,
				Plan:      meta.Plan,
			}

			ctx := ContextWithUser(r.Context(), info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// safePrefix returns a safe-to-log prefix of a token (never the full token).
func safePrefix(token string) string {
	if len(token) > 16 {
		return token[:16] + "..."
	}
	return token
}
