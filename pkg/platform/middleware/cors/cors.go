// Package cors emits the cross-origin headers the registration page needs to
// call the API from the static site origin.
package cors

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Config lists the headers sent on every response.
type Config struct {
	AllowOrigin  string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       time.Duration
}

// DefaultConfig mirrors what the registration page has always been served with.
func DefaultConfig() Config {
	return Config{
		AllowOrigin:  "*",
		AllowMethods: []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:       10 * time.Minute,
	}
}

// Headers sets the CORS headers on every response and answers preflight
// requests with 204 and no body.
func Headers(cfg Config) func(http.Handler) http.Handler {
	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")
	maxAge := strconv.Itoa(int(cfg.MaxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", cfg.AllowOrigin)
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			h.Set("Access-Control-Max-Age", maxAge)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
