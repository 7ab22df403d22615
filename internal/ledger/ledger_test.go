package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plainLedger hides PutIfAbsent so Claim falls back to check-then-set.
type plainLedger struct {
	Ledger
	getErr error
}

func (p plainLedger) Get(ctx context.Context, key string) (string, bool, error) {
	if p.getErr != nil {
		return "", false, p.getErr
	}
	return p.Ledger.Get(ctx, key)
}

func TestClaim_CheckThenSet(t *testing.T) {
	ctx := context.Background()
	store := plainLedger{Ledger: NewInMemory()}

	ok, err := Claim(ctx, store, "rl:10.0.0.1", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Claim(ctx, store, "rl:10.0.0.1", "1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaim_PropagatesStoreErrors(t *testing.T) {
	boom := errors.New("boom")
	store := plainLedger{Ledger: NewInMemory(), getErr: boom}

	ok, err := Claim(context.Background(), store, "rl:10.0.0.1", "1", time.Minute)
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
}
