package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// HTTPMiddleware guards an HTTP handler with the same API key rules as
// APIKeyInterceptor. The key is read from the header named header; a missing
// or wrong key gets 401 with a JSON error body.
func HTTPMiddleware(mode, header, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled(mode, key) {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !matches(r.Header.Get(header), key) {
				slog.Debug("auth: http request denied", "method", r.Method, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid api key"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
