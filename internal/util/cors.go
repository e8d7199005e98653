package util

import (
	"net/http"
	"strings"
)

const (
	corsAllowHeaders = "Authorization, Content-Type, X-Request-Id"
	corsAllowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
)

// WithCORS answers cross-origin requests for the configured origins.
// An empty allow-list admits every origin.
func WithCORS(allowed []string, next http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			set[origin] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			switch {
			case len(set) == 0:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case originAllowed(set, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			default:
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
			}
			w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
			w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(set map[string]struct{}, origin string) bool {
	_, ok := set[strings.TrimRight(origin, "/")]
	return ok
}
