package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/epitomedu/epi/internal/admission"
	admissionhandler "github.com/epitomedu/epi/internal/admission/handler"
	"github.com/epitomedu/epi/internal/audit"
	"github.com/epitomedu/epi/internal/ledger"
	"github.com/epitomedu/epi/internal/notifier"
	"github.com/epitomedu/epi/internal/platform/config"
	"github.com/epitomedu/epi/internal/platform/httpserver"
	"github.com/epitomedu/epi/internal/platform/logger"
	"github.com/epitomedu/epi/internal/platform/metrics"
	redisclient "github.com/epitomedu/epi/internal/platform/redis"
	rlmetrics "github.com/epitomedu/epi/internal/ratelimit/metrics"
	httptransport "github.com/epitomedu/epi/internal/transport/http"
)

const shutdownTimeout = 15 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	mode, err := admission.ParseDuplicateKeyMode(cfg.DuplicateKeyMode)
	if err != nil {
		return err
	}

	hook := notifier.New(cfg.Webhook.URL, cfg.Webhook.SharedSecret,
		notifier.WithTimeout(cfg.Webhook.Timeout),
		notifier.WithLogger(log),
		notifier.WithMetrics(m),
	)
	if len(cfg.TrustedProxies) == 0 {
		log.Info("TRUSTED_PROXY_CIDRS not set, client address is the TCP peer")
	}
	if !hook.Enabled() {
		log.Warn("SHEETS_WEBHOOK_URL not set, accepted records will not be forwarded")
	}

	opts := []admission.Option{
		admission.WithLogger(log),
		admission.WithMetrics(m),
		admission.WithRateLimitMetrics(rlmetrics.New(reg)),
		admission.WithNotifier(hook),
	}

	var health httptransport.HealthChecker
	client, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if client != nil {
		defer client.Close()

		store := ledger.NewRedis(client.Client, ledger.WithLatencyHistogram(m.LedgerLatency))
		health = store
		opts = append(opts, admission.WithLedger(store))

		if cfg.AuditLogEnabled {
			auditStore, err := audit.NewLedgerStore(store)
			if err != nil {
				return err
			}
			opts = append(opts, admission.WithAuditPublisher(audit.NewPublisher(auditStore)))
		}
	} else {
		log.Warn("REDIS_URL not set, submissions will be rejected as storage unavailable")
	}

	svc, err := admission.New(admission.Config{
		OpenAt:               cfg.OpenAt,
		RateLimitWindow:      cfg.RateLimitWindow,
		DuplicateWindow:      cfg.DuplicateWindow,
		DuplicateSuppression: cfg.DuplicateSuppression,
		DuplicateKeyMode:     mode,
		ExportLimit:          cfg.ExportLimit,
	}, opts...)
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		Gatherer:       reg,
		Ledger:         health,
		Webhook:        hook,
		TrustedProxies: cfg.TrustedProxies,
		Handlers: []httptransport.Registrar{
			admissionhandler.New(svc, log, cfg.AdminSecret),
		},
	})
	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting registration server",
			"addr", cfg.Addr,
			"open_at", cfg.OpenAt.Format(time.RFC3339),
			"ledger_configured", svc.LedgerConfigured(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := hook.Wait(shutdownCtx); err != nil {
		log.Warn("pending webhook deliveries abandoned", "error", err)
	}
	log.Info("server stopped")
	return nil
}
