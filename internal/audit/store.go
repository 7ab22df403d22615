package audit

import (
	"context"
	"errors"
	"sync"

	"github.com/epitomedu/epi/internal/ledger"
)

// Store persists rendered audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// LedgerStore appends event lines to a single ledger value. The ledger has no
// append primitive, so each Append is read-modify-write. Appends from this
// process are serialized; concurrent writers in other processes can still lose
// lines.
type LedgerStore struct {
	mu     sync.Mutex
	ledger ledger.Ledger
	key    string
}

func NewLedgerStore(l ledger.Ledger) (*LedgerStore, error) {
	if l == nil {
		return nil, errors.New("ledger is required")
	}
	return &LedgerStore{ledger: l, key: LogKey}, nil
}

func (s *LedgerStore) Append(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, _, err := s.ledger.Get(ctx, s.key)
	if err != nil {
		return err
	}
	return s.ledger.Put(ctx, s.key, prev+event.Line(), 0)
}
