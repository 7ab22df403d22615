package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/epitomedu/epi/pkg/platform/middleware/metadata"
	"github.com/epitomedu/epi/pkg/requestcontext"
	"github.com/epitomedu/epi/pkg/testutil"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type echoRegistrar struct{}

func (echoRegistrar) Register(r chi.Router) {
	r.Get("/echo", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		_, _ = io.WriteString(w, requestcontext.ClientIP(ctx)+"|"+requestcontext.RequestID(ctx))
	})
}

type degradedFlag bool

func (d degradedFlag) Degraded() bool { return bool(d) }

// testProxies trusts the address httptest requests originate from.
var testProxies = metadata.TrustedProxies{netip.MustParsePrefix("192.0.2.1/32")}

func newTestRouter(ledger HealthChecker) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"}))
	return NewRouter(Deps{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Gatherer:       reg,
		Ledger:         ledger,
		TrustedProxies: testProxies,
		Handlers:       []Registrar{echoRegistrar{}},
	})
}

func TestHealth(t *testing.T) {
	testutil.Given(t, "no ledger", func(t *testing.T) {
		rr := testutil.DoRequest(newTestRouter(nil), testutil.NewRequest(t, http.MethodGet, "/health"))
		testutil.Then(t, "health is degraded but up", func(t *testing.T) {
			testutil.AssertStatus(t, rr, http.StatusOK)
			assert.Contains(t, rr.Body.String(), `"degraded"`)
		})
	})

	testutil.Given(t, "a reachable ledger", func(t *testing.T) {
		router := newTestRouter(pingFunc(func(context.Context) error { return nil }))
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))
		testutil.AssertStatus(t, rr, http.StatusOK)
	})

	testutil.Given(t, "an unreachable ledger", func(t *testing.T) {
		router := newTestRouter(pingFunc(func(context.Context) error { return errors.New("refused") }))
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))
		testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
	})

	testutil.Given(t, "a reachable ledger and a failing webhook", func(t *testing.T) {
		router := NewRouter(Deps{
			Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
			Ledger:  pingFunc(func(context.Context) error { return nil }),
			Webhook: degradedFlag(true),
		})
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))
		testutil.Then(t, "health stays up and names the webhook", func(t *testing.T) {
			testutil.AssertStatus(t, rr, http.StatusOK)
			assert.Contains(t, rr.Body.String(), `"status":"degraded"`)
			assert.Contains(t, rr.Body.String(), `"webhook":"failing"`)
		})
	})
}

func TestMetricsEndpoint(t *testing.T) {
	rr := testutil.DoRequest(newTestRouter(nil), testutil.NewRequest(t, http.MethodGet, "/metrics"))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, rr.Body.String(), "test_total")
}

func TestMiddlewareStack(t *testing.T) {
	req := testutil.NewRequest(t, http.MethodGet, "/echo")
	req.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")

	rr := testutil.DoRequest(newTestRouter(nil), req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	ip, reqID, _ := strings.Cut(rr.Body.String(), "|")
	assert.Equal(t, "198.51.100.4", ip)
	assert.NotEmpty(t, reqID)
	assert.Equal(t, reqID, rr.Header().Get("X-Request-ID"))
}

func TestMiddlewareStack_UntrustedPeer(t *testing.T) {
	req := testutil.NewRequest(t, http.MethodGet, "/echo")
	req.RemoteAddr = "198.51.100.9:5555"
	req.Header.Set("CF-Connecting-IP", "1.1.1.1")
	req.Header.Set("X-Forwarded-For", "2.2.2.2")

	rr := testutil.DoRequest(newTestRouter(nil), req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	ip, _, _ := strings.Cut(rr.Body.String(), "|")
	assert.Equal(t, "198.51.100.9", ip)
}
