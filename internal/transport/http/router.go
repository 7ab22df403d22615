package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/epitomedu/epi/pkg/platform/httputil"
	"github.com/epitomedu/epi/pkg/platform/middleware/metadata"
	"github.com/epitomedu/epi/pkg/platform/middleware/requestlog"
	"github.com/epitomedu/epi/pkg/platform/middleware/requesttime"
)

const requestTimeout = 30 * time.Second

// Registrar mounts a feature's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// DegradationReporter reports a dependency that is failing but not fatal.
type DegradationReporter interface {
	Degraded() bool
}

// Deps are the collaborators the router exposes.
type Deps struct {
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer

	// Ledger is nil when no store is configured; health then reports degraded.
	Ledger  HealthChecker
	Webhook DegradationReporter

	// TrustedProxies may name the client address through forwarding headers.
	TrustedProxies metadata.TrustedProxies
	Handlers       []Registrar
}

// NewRouter wires the shared middleware stack, operational endpoints and every
// feature handler.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestlog.RequestID)
	r.Use(metadata.ClientMetadata(deps.TrustedProxies))
	r.Use(requesttime.Middleware)
	r.Use(requestlog.Logger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))

	r.Get("/health", healthHandler(deps.Ledger, deps.Webhook))
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	for _, h := range deps.Handlers {
		h.Register(r)
	}
	return r
}

type healthResponse struct {
	Status  string `json:"status"`
	Ledger  string `json:"ledger"`
	Webhook string `json:"webhook,omitempty"`
}

func healthHandler(ledger HealthChecker, webhook DegradationReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Ledger: "ok"}
		if webhook != nil {
			resp.Webhook = "ok"
			if webhook.Degraded() {
				resp.Status, resp.Webhook = "degraded", "failing"
			}
		}

		if ledger == nil {
			resp.Status, resp.Ledger = "degraded", "not_configured"
			httputil.WriteJSON(w, http.StatusOK, resp)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ledger.Ping(ctx); err != nil {
			resp.Status, resp.Ledger = "unavailable", "unreachable"
			httputil.WriteJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}
