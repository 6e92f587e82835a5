package bbshttp

import (
	"net/http"
	"strings"
)

// CORS gates access from browser-based terminal clients (spec §4.11's
// endpoints are meant to be called from a web terminal on a different
// origin than the BBS server), adapted from the teacher's
// middleware.CORSMiddleware down to the fixed method/header set
// TerminalEndpoints and AuthEndpoints actually use.
type CORS struct {
	allowedOrigins []string
	allowAll       bool
}

// NewCORS builds a CORS gate. An allowedOrigins entry of "*" allows every
// origin.
func NewCORS(allowedOrigins []string) *CORS {
	allowAll := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
			break
		}
	}
	return &CORS{allowedOrigins: allowedOrigins, allowAll: allowAll}
}

// Wrap applies CORS headers to next, answering OPTIONS preflights itself.
func (c *CORS) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if c.allowAll || c.isAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *CORS) isAllowed(origin string) bool {
	for _, allowed := range c.allowedOrigins {
		if allowed == origin || strings.HasSuffix(origin, allowed) {
			return true
		}
	}
	return false
}
