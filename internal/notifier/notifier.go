// Package notifier forwards accepted records to the spreadsheet webhook.
// Deliveries are detached from the request that produced them and never
// affect its outcome.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/epitomedu/epi/internal/admission/models"
	"github.com/epitomedu/epi/internal/platform/metrics"
	"github.com/epitomedu/epi/pkg/platform/circuit"
)

const (
	defaultTimeout = 10 * time.Second

	// responseBodyLimit caps how much of a failed response is kept for logging.
	responseBodyLimit = 1 << 10
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Webhook struct {
	url     string
	secret  string
	timeout time.Duration
	client  HTTPDoer
	logger  *slog.Logger
	metrics *metrics.Metrics
	breaker *circuit.Breaker

	wg sync.WaitGroup
}

type Option func(*Webhook)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Webhook) {
		w.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Webhook) {
		w.metrics = m
	}
}

func WithClient(client HTTPDoer) Option {
	return func(w *Webhook) {
		w.client = client
	}
}

// WithBreaker replaces the breaker that tracks consecutive delivery failures.
func WithBreaker(b *circuit.Breaker) Option {
	return func(w *Webhook) {
		if b != nil {
			w.breaker = b
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(w *Webhook) {
		if timeout > 0 {
			w.timeout = timeout
		}
	}
}

// New returns a webhook notifier. An empty url yields a notifier that drops
// every record.
func New(url, secret string, opts ...Option) *Webhook {
	w := &Webhook{
		url:     url,
		secret:  secret,
		timeout: defaultTimeout,
		logger:  slog.Default(),
		breaker: circuit.New("sheets-webhook"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.client == nil {
		w.client = &http.Client{Timeout: w.timeout}
	}
	return w
}

// Enabled reports whether a webhook url is configured.
func (w *Webhook) Enabled() bool {
	return w.url != ""
}

type payload struct {
	*models.Record
	Token string `json:"token"`
}

// Notify schedules delivery of record and returns immediately. The delivery
// runs on its own context so request cancellation does not abort it.
func (w *Webhook) Notify(ctx context.Context, record *models.Record) {
	if !w.Enabled() || record == nil {
		return
	}

	deliveryCtx := context.WithoutCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.deliver(deliveryCtx, record)
	}()
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (w *Webhook) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Webhook) deliver(ctx context.Context, record *models.Record) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.post(ctx, record); err != nil {
		w.logger.WarnContext(ctx, "webhook delivery failed",
			"record_id", record.ID,
			"error", err,
		)
		w.count("failed")
		if _, change := w.breaker.RecordFailure(); change.Opened {
			w.logger.ErrorContext(ctx, "webhook failing repeatedly, records are only in the ledger until it recovers",
				"breaker", w.breaker.Name(),
			)
		}
		return
	}
	w.count("delivered")
	if _, change := w.breaker.RecordSuccess(); change.Closed {
		w.logger.InfoContext(ctx, "webhook recovered", "breaker", w.breaker.Name())
	}
}

// Degraded reports whether recent deliveries have been failing consecutively.
func (w *Webhook) Degraded() bool {
	return w.breaker.IsOpen()
}

func (w *Webhook) post(ctx context.Context, record *models.Record) error {
	body, err := json.Marshal(payload{Record: record, Token: w.secret})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (w *Webhook) count(result string) {
	if w.metrics != nil {
		w.metrics.IncDelivery(result)
	}
}
