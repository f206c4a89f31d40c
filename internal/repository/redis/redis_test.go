package redis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/agent-handoff/internal/arbiter"
)

var _ arbiter.Arbiter = (*ClaimStore)(nil)

func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Requires Redis connection - set TEST_REDIS_ADDR")
	}
	c := wrap(redis.NewClient(&redis.Options{Addr: addr}), "handoff-test:")
	require.NoError(t, c.Ping(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClaimStore_ExactlyOneWinner(t *testing.T) {
	store := NewClaimStore(testClient(t), time.Minute)
	ctx := context.Background()
	ticketID := uuid.NewString()
	t.Cleanup(func() { _ = store.Forget(ctx, ticketID) })

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()
			_, won, err := store.Claim(ctx, ticketID, agentID)
			assert.NoError(t, err)
			if won {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(fmt.Sprintf("a%d", i))
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestClaimStore_ReleaseOnlyByHolder(t *testing.T) {
	store := NewClaimStore(testClient(t), time.Minute)
	ctx := context.Background()
	ticketID := uuid.NewString()
	t.Cleanup(func() { _ = store.Forget(ctx, ticketID) })

	_, won, err := store.Claim(ctx, ticketID, "a1")
	require.NoError(t, err)
	require.True(t, won)

	holder, won, err := store.Claim(ctx, ticketID, "a1")
	require.NoError(t, err)
	assert.True(t, won, "claim is idempotent for the holder")
	assert.Equal(t, "a1", holder)

	released, err := store.Release(ctx, ticketID, "a2")
	require.NoError(t, err)
	assert.False(t, released)

	released, err = store.Release(ctx, ticketID, "a1")
	require.NoError(t, err)
	assert.True(t, released)

	holder, err = store.Holder(ctx, ticketID)
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestRateLimiter_Allow(t *testing.T) {
	limiter := NewRateLimiter(testClient(t), 2, 1)
	ctx := context.Background()
	key := "agent-" + uuid.NewString()
	t.Cleanup(func() { _ = limiter.Reset(ctx, key) })

	for i := 0; i < 3; i++ {
		allowed, _, _, err := limiter.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i)
	}

	allowed, remaining, _, err := limiter.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
}

func TestClient_KeysAreNamespaced(t *testing.T) {
	c := wrap(nil, "handoff:")
	assert.Equal(t, "handoff:claim:t-1", NewClaimStore(c, 0).key("t-1"))

	start := time.Unix(1714550400, 0)
	assert.Equal(t, "handoff:ratelimit:agent-1:1714550400", NewRateLimiter(c, 1, 0).windowKey("agent-1", start))
}
