package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "github.com/epitomedu/epi/pkg/domain-errors"
	"github.com/epitomedu/epi/pkg/platform/httputil"
	"github.com/epitomedu/epi/pkg/requestcontext"
)

// RequireAdminToken guards administrative endpoints with a shared secret passed
// as the "token" query parameter or the X-Admin-Token header. An empty expected
// token disables the check, matching deployments that protect the export at the
// network edge instead.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expectedToken == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := r.URL.Query().Get("token")
			if token == "" {
				token = r.Header.Get("X-Admin-Token")
			}
			// Use constant-time comparison to prevent timing attacks
			if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "unauthorized"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
