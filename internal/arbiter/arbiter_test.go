package arbiter

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ExactlyOneWinner(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	const agents = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := []string{}
	holders := map[string]int{}

	for i := 0; i < agents; i++ {
		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()
			holder, won, err := m.Claim(ctx, "T1", agentID)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			holders[holder]++
			if won {
				winners = append(winners, agentID)
			}
		}(fmt.Sprintf("a%d", i))
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, map[string]int{winners[0]: agents}, holders, "every claimant sees the same holder")
}

func TestMemory_ClaimIdempotentForHolder(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	_, won, _ := m.Claim(ctx, "T1", "a1")
	require.True(t, won)
	holder, won, _ := m.Claim(ctx, "T1", "a1")
	assert.True(t, won)
	assert.Equal(t, "a1", holder)

	holder, won, _ = m.Claim(ctx, "T1", "a2")
	assert.False(t, won)
	assert.Equal(t, "a1", holder)
}

func TestMemory_Release(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()
	_, _, _ = m.Claim(ctx, "T1", "a1")

	released, _ := m.Release(ctx, "T1", "a2")
	assert.False(t, released, "only the holder releases")

	released, _ = m.Release(ctx, "T1", "a1")
	assert.True(t, released)
	released, _ = m.Release(ctx, "T1", "a1")
	assert.False(t, released)

	_, won, _ := m.Claim(ctx, "T1", "a2")
	assert.True(t, won)
}

func TestMemory_Forget(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()
	_, _, _ = m.Claim(ctx, "T1", "a1")

	require.NoError(t, m.Forget(ctx, "T1"))

	holder, _ := m.Holder(ctx, "T1")
	assert.Empty(t, holder)
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory(time.Minute)
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_, _, _ = m.Claim(ctx, "T1", "a1")
	now = now.Add(2 * time.Minute)

	holder, won, _ := m.Claim(ctx, "T1", "a2")
	assert.True(t, won)
	assert.Equal(t, "a2", holder)
}
