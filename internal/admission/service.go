// Package admission decides whether a registration submission is accepted and,
// when it is, persists it and hands it to the notifier.
package admission

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/epitomedu/epi/internal/admission/models"
	"github.com/epitomedu/epi/internal/audit"
	"github.com/epitomedu/epi/internal/ledger"
	"github.com/epitomedu/epi/internal/platform/metrics"
	rlmetrics "github.com/epitomedu/epi/internal/ratelimit/metrics"
	"github.com/epitomedu/epi/internal/ratelimit/service/requestlimit"
	"github.com/epitomedu/epi/internal/timegate"
	dErrors "github.com/epitomedu/epi/pkg/domain-errors"
	"github.com/epitomedu/epi/pkg/platform/sentinel"
	"github.com/epitomedu/epi/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Ledger,Notifier

const (
	tracerName = "github.com/epitomedu/epi/internal/admission"

	// exportConcurrency bounds parallel record reads during export.
	exportConcurrency = 16

	// markerReleaseTTL expires a duplicate marker whose record never landed.
	// The ledger has no delete, so the marker is overwritten to lapse at once.
	markerReleaseTTL = time.Millisecond

	outcomeAccepted = "accepted"
)

// Rejection reasons. They are returned verbatim to submitters.
const (
	msgNotYetOpen  = "registration is not yet open"
	msgRateLimited = "too many requests, please retry later"
	msgDuplicate   = "already submitted"
	msgNoStorage   = "storage unavailable"
	msgInternal    = "processing failed"
)

// Ledger is the key-value store the pipeline persists state in. It matches
// ledger.Ledger; stores that also implement ledger.ConditionalPutter get
// atomic marker claims.
type Ledger interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	ListKeysByPrefix(ctx context.Context, prefix string, limit int) ([]string, error)
}

// Notifier receives accepted records. Notify must not block on delivery.
type Notifier interface {
	Notify(ctx context.Context, record *models.Record)
}

// Status describes the registration window as seen at one instant.
type Status struct {
	Now              time.Time `json:"now"`
	OpenAt           time.Time `json:"openAt"`
	BeforeOpen       bool      `json:"beforeOpen"`
	LedgerConfigured bool      `json:"ledgerConfigured"`
}

type Service struct {
	cfg       Config
	gate      *timegate.Gate
	ledger    Ledger
	limiter   *requestlimit.Service
	audit     *audit.Publisher
	notifier  Notifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
	rlMetrics *rlmetrics.Metrics
	tracer    trace.Tracer
	newID     func(time.Time) string
}

type Option func(*Service)

// WithLedger enables rate limiting, duplicate suppression and persistence.
// Without a ledger every valid, open submission fails with storage_unavailable.
func WithLedger(l Ledger) Option {
	return func(s *Service) {
		s.ledger = l
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithAuditPublisher(p *audit.Publisher) Option {
	return func(s *Service) {
		s.audit = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithRateLimitMetrics(m *rlmetrics.Metrics) Option {
	return func(s *Service) {
		s.rlMetrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithIDGenerator replaces NewID.
func WithIDGenerator(fn func(time.Time) string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

func New(cfg Config, opts ...Option) (*Service, error) {
	svc := &Service{
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
		newID:  NewID,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if _, err := ParseDuplicateKeyMode(string(svc.cfg.DuplicateKeyMode)); err != nil {
		return nil, err
	}
	if svc.tracer == nil {
		svc.tracer = otel.Tracer(tracerName)
	}
	svc.gate = timegate.New(svc.cfg.OpenAt)

	if svc.ledger != nil {
		limiterOpts := []requestlimit.Option{
			requestlimit.WithWindow(svc.cfg.RateLimitWindow),
			requestlimit.WithLogger(svc.logger),
		}
		if svc.rlMetrics != nil {
			limiterOpts = append(limiterOpts, requestlimit.WithMetrics(svc.rlMetrics))
		}
		limiter, err := requestlimit.New(svc.ledger, limiterOpts...)
		if err != nil {
			return nil, err
		}
		svc.limiter = limiter
	}
	return svc, nil
}

// RetryAfter is the effective rate limit window, reported to throttled clients.
func (s *Service) RetryAfter() time.Duration {
	return requestlimit.ClampWindow(s.cfg.RateLimitWindow)
}

// LedgerConfigured reports whether a ledger was supplied.
func (s *Service) LedgerConfigured() bool {
	return s.ledger != nil
}

// Status reports the registration window relative to the request instant.
func (s *Service) Status(ctx context.Context) Status {
	now := requestcontext.Now(ctx)
	return Status{
		Now:              now,
		OpenAt:           s.cfg.OpenAt.UTC(),
		BeforeOpen:       !timegate.IsOpen(now, s.cfg.OpenAt),
		LedgerConfigured: s.LedgerConfigured(),
	}
}

// Admit runs a submission through the pipeline. A nil error means the record
// was persisted; otherwise the error is a *domainerrors.Error whose code names
// the rejection.
func (s *Service) Admit(ctx context.Context, sub models.Submission, sourceAddress string) (*models.Record, error) {
	ctx, span := s.tracer.Start(ctx, "admission.Admit")
	defer span.End()

	record, err := s.admit(ctx, sub, sourceAddress)

	outcome := outcomeAccepted
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
		if outcome == string(dErrors.CodeInternal) || outcome == string(dErrors.CodeStorageUnavailable) {
			span.SetStatus(codes.Error, outcome)
		}
	} else {
		span.SetAttributes(attribute.String("admission.record_id", record.ID))
	}
	span.SetAttributes(attribute.String("admission.outcome", outcome))
	if s.metrics != nil {
		s.metrics.IncAdmission(outcome)
	}
	return record, err
}

func (s *Service) admit(ctx context.Context, sub models.Submission, sourceAddress string) (*models.Record, error) {
	requestID := requestcontext.RequestID(ctx)

	sub, err := Normalize(sub)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	if !s.gate.Allow(now) {
		return nil, dErrors.New(dErrors.CodeNotYetOpen, msgNotYetOpen)
	}

	if s.limiter != nil {
		res, err := s.limiter.CheckIP(ctx, sourceAddress)
		if err != nil {
			return nil, s.storeFault(ctx, "rate limit check failed", err)
		}
		if !res.Allowed {
			return nil, dErrors.New(dErrors.CodeRateLimited, msgRateLimited)
		}
	}

	id := s.newID(now)

	var dupKey string
	if s.ledger != nil && s.cfg.DuplicateSuppression {
		key := DuplicateKey(s.cfg.DuplicateKeyMode, sub)
		claimed, err := ledger.Claim(ctx, s.ledger, key, id, s.cfg.DuplicateWindow)
		if err != nil {
			return nil, s.storeFault(ctx, "duplicate check failed", err)
		}
		if !claimed {
			s.logger.InfoContext(ctx, "duplicate submission rejected",
				"request_id", requestID,
				"duplicate_key", key,
			)
			return nil, dErrors.New(dErrors.CodeDuplicate, msgDuplicate)
		}
		dupKey = key
	}

	if s.ledger == nil {
		return nil, dErrors.New(dErrors.CodeStorageUnavailable, msgNoStorage)
	}

	record := &models.Record{
		ID:            id,
		SubmittedAt:   now,
		SourceAddress: sourceAddress,
		Submission:    sub,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, msgInternal)
	}
	if err := s.ledger.Put(ctx, RecordKey(id), string(payload), 0); err != nil {
		s.releaseDuplicate(ctx, dupKey)
		return nil, s.storeFault(ctx, "record write failed", err)
	}

	s.logger.InfoContext(ctx, "submission accepted",
		"request_id", requestID,
		"record_id", id,
	)

	if err := s.audit.Emit(ctx, audit.Event{
		Timestamp:     now,
		SourceAddress: sourceAddress,
		Branch:        sub.Branch,
		ChildName:     sub.ChildName,
		AddrBase:      sub.AddrBase,
		AddrDetail:    sub.AddrDetail,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit log append failed",
			"request_id", requestID,
			"record_id", id,
			"error", err,
		)
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, record)
	}
	return record, nil
}

// releaseDuplicate lets a retry after a failed record write pass the
// duplicate check. Best effort: a store that just failed may fail again.
func (s *Service) releaseDuplicate(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.ledger.Put(context.WithoutCancel(ctx), key, "", markerReleaseTTL); err != nil {
		s.logger.WarnContext(ctx, "duplicate marker release failed",
			"request_id", requestcontext.RequestID(ctx),
			"duplicate_key", key,
			"error", err,
		)
	}
}

// storeFault translates a ledger error. Unavailability is reported as such;
// anything else is an internal fault whose details stay in the log.
func (s *Service) storeFault(ctx context.Context, msg string, err error) error {
	s.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	if errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, msgNoStorage)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msgInternal)
}

// ExportRecords returns the raw JSON of persisted records, most recent first.
// Records that disappear between listing and reading are skipped.
func (s *Service) ExportRecords(ctx context.Context) ([]string, error) {
	if s.ledger == nil {
		return nil, dErrors.New(dErrors.CodeStorageUnavailable, msgNoStorage)
	}

	keys, err := s.ledger.ListKeysByPrefix(ctx, RecordKeyPrefix, s.cfg.ExportLimit)
	if err != nil {
		return nil, s.storeFault(ctx, "record listing failed", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	values := make([]string, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(exportConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			v, found, err := s.ledger.Get(gctx, key)
			if err != nil {
				return err
			}
			if found {
				values[i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, s.storeFault(ctx, "record read failed", err)
	}

	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out, nil
}
