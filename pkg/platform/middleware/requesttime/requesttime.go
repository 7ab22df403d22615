// Package requesttime captures one UTC instant per request so every time-based
// decision within the request (time gate, record timestamp, marker expiry)
// observes the same "now".
package requesttime

import (
	"net/http"
	"time"

	"github.com/epitomedu/epi/pkg/requestcontext"
)

// Middleware stores the request's arrival instant in the context.
func Middleware(next http.Handler) http.Handler {
	return MiddlewareWithClock(time.Now)(next)
}

// MiddlewareWithClock is Middleware with an injectable clock, used by tests
// that pin the arrival instant around the registration opening.
func MiddlewareWithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), now().UTC())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
