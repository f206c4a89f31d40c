package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateWindow = time.Minute

// RateLimiter caps REST calls per agent in fixed one-minute windows. Burst
// is added on top of the per-minute allowance.
type RateLimiter struct {
	client *Client
	limit  int64
}

// NewRateLimiter creates a limiter allowing requestsPerMinute+burst calls
// per window
func NewRateLimiter(client *Client, requestsPerMinute, burst int) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  int64(requestsPerMinute + burst),
	}
}

func (r *RateLimiter) windowKey(agentID string, start time.Time) string {
	return r.client.key("ratelimit", agentID, strconv.FormatInt(start.Unix(), 10))
}

// Allow counts one call for agentID and reports whether it fits the
// current window, the calls left in it and when it resets
func (r *RateLimiter) Allow(ctx context.Context, agentID string) (bool, int, time.Time, error) {
	start := time.Now().Truncate(rateWindow)
	reset := start.Add(rateWindow)
	key := r.windowKey(agentID, start)

	var incr *redis.IntCmd
	_, err := r.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, reset)
		return nil
	})
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("failed to count request: %w", err)
	}

	count := incr.Val()
	remaining := r.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= r.limit, int(remaining), reset, nil
}

// Reset clears agentID's counter for the current window
func (r *RateLimiter) Reset(ctx context.Context, agentID string) error {
	return r.client.rdb.Del(ctx, r.windowKey(agentID, time.Now().Truncate(rateWindow))).Err()
}
