package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/epitomedu/epi/pkg/platform/sentinel"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// InMemoryLedger is a process-local Ledger with per-key expiry. It backs
// single-instance deployments without Redis and the admission tests, where the
// clock is replaced to step across marker windows.
type InMemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type MemoryOption func(*InMemoryLedger)

// WithClock replaces the wall clock used to evaluate expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *InMemoryLedger) {
		l.now = now
	}
}

func NewInMemory(opts ...MemoryOption) *InMemoryLedger {
	l := &InMemoryLedger{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *InMemoryLedger) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, sentinel.ErrUnavailable)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[key]
	if !ok || l.expired(e) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (l *InMemoryLedger) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("put %q: %w", key, sentinel.ErrUnavailable)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[key] = l.entry(value, ttl)
	return nil
}

func (l *InMemoryLedger) PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("put if absent %q: %w", key, sentinel.ErrUnavailable)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[key]; ok && !l.expired(e) {
		return false, nil
	}
	l.entries[key] = l.entry(value, ttl)
	return true, nil
}

func (l *InMemoryLedger) ListKeysByPrefix(ctx context.Context, prefix string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, sentinel.ErrUnavailable)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	keys := make([]string, 0)
	for k, e := range l.entries {
		if strings.HasPrefix(k, prefix) && !l.expired(e) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (l *InMemoryLedger) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (l *InMemoryLedger) entry(value string, ttl time.Duration) memoryEntry {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = l.now().Add(ttl)
	}
	return e
}

func (l *InMemoryLedger) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !l.now().Before(e.expiresAt)
}
