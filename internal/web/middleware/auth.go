package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/JonMunkholm/pharmaimport/internal/config"
	"github.com/JonMunkholm/pharmaimport/internal/logging"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth rejects requests without a configured X-API-Key. With
// RequireAPIKey off every request passes.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(APIKeyHeader)
			switch {
			case key == "":
				logging.FromContext(r.Context()).Warn("auth: missing API key",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusUnauthorized, "missing API key", "AUTH_MISSING_KEY")
				return
			case !isValidAPIKey(key, cfg.APIKeys):
				logging.FromContext(r.Context()).Warn("auth: invalid API key",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusForbidden, "invalid API key", "AUTH_INVALID_KEY")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `","code":"` + code + `"}`))
}

// isValidAPIKey compares against every key in constant time.
func isValidAPIKey(key string, validKeys []string) bool {
	valid := 0
	for _, k := range validKeys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(k))
	}
	return valid == 1
}
