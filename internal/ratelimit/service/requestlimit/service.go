// Package requestlimit throttles submissions per source address with a single
// expiring marker: while the marker exists the address is blocked.
package requestlimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/epitomedu/epi/internal/ledger"
	"github.com/epitomedu/epi/internal/ratelimit/metrics"
	"github.com/epitomedu/epi/internal/ratelimit/models"
	"github.com/epitomedu/epi/pkg/requestcontext"
)

const (
	// MinWindow is the floor applied to any configured window so a
	// misconfiguration cannot turn the limiter off.
	MinWindow = 60 * time.Second

	markerValue = "1"
)

type Service struct {
	ledger  ledger.Ledger
	window  time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithWindow sets the marker lifetime. Values below MinWindow are raised to it.
func WithWindow(window time.Duration) Option {
	return func(s *Service) {
		s.window = ClampWindow(window)
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(l ledger.Ledger, opts ...Option) (*Service, error) {
	if l == nil {
		return nil, errors.New("ledger is required")
	}

	svc := &Service{
		ledger: l,
		window: MinWindow,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ClampWindow applies the MinWindow floor.
func ClampWindow(window time.Duration) time.Duration {
	if window < MinWindow {
		return MinWindow
	}
	return window
}

// Window returns the effective marker lifetime.
func (s *Service) Window() time.Duration {
	return s.window
}

// CheckIP claims the marker for ip. The first call per window is allowed and
// sets the marker; every later call inside the window is blocked. Blocked calls
// do not extend the window.
func (s *Service) CheckIP(ctx context.Context, ip string) (*models.RateLimitResult, error) {
	now := requestcontext.Now(ctx)
	key := models.NewRateLimitKey(models.KeyPrefixIP, ip)

	claimed, err := ledger.Claim(ctx, s.ledger, key, markerValue, s.window)
	if err != nil {
		return nil, err
	}

	if !claimed {
		if s.metrics != nil {
			s.metrics.RecordBlocked()
		}
		if s.logger != nil {
			s.logger.InfoContext(ctx, "ip_rate_limit_exceeded",
				"request_id", requestcontext.RequestID(ctx),
				"key", key,
				"window_seconds", int(s.window.Seconds()),
			)
		}
		return &models.RateLimitResult{
			Allowed:    false,
			ResetAt:    now.Add(s.window),
			RetryAfter: int(s.window.Seconds()),
		}, nil
	}

	if s.metrics != nil {
		s.metrics.RecordAllowed()
	}
	return &models.RateLimitResult{
		Allowed: true,
		ResetAt: now.Add(s.window),
	}, nil
}
