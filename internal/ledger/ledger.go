// Package ledger is the contract over the external key-value store that holds
// every piece of shared admission state: rate-limit markers, duplicate markers,
// records and the audit log. The store offers no transactions; callers that need
// at-most-once semantics go through Claim.
package ledger

import (
	"context"
	"time"
)

// Ledger is the minimal key-value capability the admission pipeline needs.
type Ledger interface {
	// Get returns the value stored under key. found is false when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Put stores value under key. A zero ttl means the key never expires.
	Put(ctx context.Context, key, value string, ttl time.Duration) error

	// ListKeysByPrefix returns up to limit keys starting with prefix, in
	// ascending lexical order.
	ListKeysByPrefix(ctx context.Context, prefix string, limit int) ([]string, error)
}

// ConditionalPutter is implemented by stores that can set a key only when it is
// absent in a single atomic step.
type ConditionalPutter interface {
	PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Claim sets a marker key if it is not already present and reports whether this
// caller set it. Stores implementing ConditionalPutter make the claim atomic;
// for the rest it is check-then-set and two racing callers may both win.
func Claim(ctx context.Context, l Ledger, key, value string, ttl time.Duration) (bool, error) {
	if cp, ok := l.(ConditionalPutter); ok {
		return cp.PutIfAbsent(ctx, key, value, ttl)
	}

	_, found, err := l.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}
	if err := l.Put(ctx, key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}
