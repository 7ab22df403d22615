//go:build integration

package ledger_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/epitomedu/epi/internal/ledger"
	"github.com/epitomedu/epi/pkg/testutil/containers"
)

type RedisLedgerSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *ledger.RedisLedger
}

func TestRedisLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLedgerSuite))
}

func (s *RedisLedgerSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = ledger.NewRedis(s.redis.Client)
}

func (s *RedisLedgerSuite) TearDownSuite() {
	s.redis.Terminate(context.Background())
}

func (s *RedisLedgerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLedgerSuite) TestGetPut() {
	ctx := context.Background()

	_, found, err := s.store.Get(ctx, "apply:missing")
	s.Require().NoError(err)
	s.False(found)

	s.Require().NoError(s.store.Put(ctx, "apply:1", `{"id":"1"}`, 0))
	v, found, err := s.store.Get(ctx, "apply:1")
	s.Require().NoError(err)
	s.True(found)
	s.Equal(`{"id":"1"}`, v)
}

func (s *RedisLedgerSuite) TestMarkerExpires() {
	ctx := context.Background()

	s.Require().NoError(s.store.Put(ctx, "rl:192.0.2.1", "1", time.Second))
	_, found, err := s.store.Get(ctx, "rl:192.0.2.1")
	s.Require().NoError(err)
	s.True(found)

	s.Eventually(func() bool {
		_, found, err := s.store.Get(ctx, "rl:192.0.2.1")
		return err == nil && !found
	}, 5*time.Second, 100*time.Millisecond)
}

func (s *RedisLedgerSuite) TestConcurrentClaimIsAtomic() {
	ctx := context.Background()

	const goroutines = 50
	var wins atomic.Int32
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			ok, err := ledger.Claim(ctx, s.store, "dup:same", "1", time.Minute)
			s.NoError(err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
}

func (s *RedisLedgerSuite) TestListKeysByPrefix() {
	ctx := context.Background()
	for _, k := range []string{"apply:0002", "apply:0001", "apply:0003", "rl:x", "log"} {
		s.Require().NoError(s.store.Put(ctx, k, "v", 0))
	}

	keys, err := s.store.ListKeysByPrefix(ctx, "apply:", 1000)
	s.Require().NoError(err)
	s.Equal([]string{"apply:0001", "apply:0002", "apply:0003"}, keys)

	keys, err = s.store.ListKeysByPrefix(ctx, "apply:", 2)
	s.Require().NoError(err)
	s.Len(keys, 2)
}

func (s *RedisLedgerSuite) TestPing() {
	s.NoError(s.store.Ping(context.Background()))
}
