package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/epitomedu/epi/pkg/platform/sentinel"
)

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 200

// RedisLedger is the production Ledger for multi-instance deployments.
// Markers use SET with EX so expiry is handled by Redis itself.
type RedisLedger struct {
	client  redis.UniversalClient
	latency *prometheus.HistogramVec
}

type RedisOption func(*RedisLedger)

// WithLatencyHistogram records the duration of every command in seconds,
// labelled by operation.
func WithLatencyHistogram(h *prometheus.HistogramVec) RedisOption {
	return func(l *RedisLedger) {
		l.latency = h
	}
}

// NewRedis constructs a Redis-backed ledger. The client lifecycle is managed by
// the caller.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *RedisLedger {
	l := &RedisLedger{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func (l *RedisLedger) Get(ctx context.Context, key string) (string, bool, error) {
	defer l.observe("get", time.Now())

	v, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get", key, err)
	}
	return v, true, nil
}

func (l *RedisLedger) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	defer l.observe("put", time.Now())

	if err := l.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("put", key, err)
	}
	return nil
}

// PutIfAbsent uses SET NX, closing the check-then-set race for markers.
func (l *RedisLedger) PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	defer l.observe("put_if_absent", time.Now())

	ok, err := l.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, unavailable("put if absent", key, err)
	}
	return ok, nil
}

// ListKeysByPrefix walks the keyspace with SCAN so a large ledger never blocks
// Redis the way KEYS would.
func (l *RedisLedger) ListKeysByPrefix(ctx context.Context, prefix string, limit int) ([]string, error) {
	defer l.observe("list", time.Now())

	pattern := escapeGlob(prefix) + "*"
	seen := make(map[string]struct{})
	var cursor uint64
	for {
		keys, next, err := l.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, unavailable("list", prefix, err)
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *RedisLedger) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

func (l *RedisLedger) observe(op string, start time.Time) {
	if l.latency == nil {
		return
	}
	l.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("redis %s %q: %w", op, key, errors.Join(sentinel.ErrUnavailable, err))
}

// escapeGlob escapes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
