package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the claim only if it is still held by ARGV[1]
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ClaimStore arbitrates ticket claims across hub instances. A claim is a
// key holding the agent id, set only if absent.
type ClaimStore struct {
	client *Client
	ttl    time.Duration
}

// NewClaimStore creates a claim store. Claims expire after ttl unless ttl
// is zero.
func NewClaimStore(client *Client, ttl time.Duration) *ClaimStore {
	return &ClaimStore{client: client, ttl: ttl}
}

func (s *ClaimStore) key(ticketID string) string {
	return s.client.key("claim", ticketID)
}

// Claim sets the claim for agentID if nobody holds it. A holder claiming
// again keeps the claim and refreshes its expiry.
func (s *ClaimStore) Claim(ctx context.Context, ticketID, agentID string) (string, bool, error) {
	key := s.key(ticketID)

	ok, err := s.client.rdb.SetNX(ctx, key, agentID, s.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to set claim: %w", err)
	}
	if ok {
		return agentID, true, nil
	}

	holder, err := s.client.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET, try once more
		ok, err = s.client.rdb.SetNX(ctx, key, agentID, s.ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("failed to set claim: %w", err)
		}
		if ok {
			return agentID, true, nil
		}
		holder, err = s.client.rdb.Get(ctx, key).Result()
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read claim: %w", err)
	}

	if holder != agentID {
		return holder, false, nil
	}
	if s.ttl > 0 {
		if err := s.client.rdb.Expire(ctx, key, s.ttl).Err(); err != nil {
			return "", false, fmt.Errorf("failed to refresh claim: %w", err)
		}
	}
	return agentID, true, nil
}

// Release deletes the claim if agentID holds it
func (s *ClaimStore) Release(ctx context.Context, ticketID, agentID string) (bool, error) {
	n, err := releaseScript.Run(ctx, s.client.rdb, []string{s.key(ticketID)}, agentID).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to release claim: %w", err)
	}
	return n == 1, nil
}

// Holder returns the agent holding the ticket, or ""
func (s *ClaimStore) Holder(ctx context.Context, ticketID string) (string, error) {
	holder, err := s.client.rdb.Get(ctx, s.key(ticketID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read claim: %w", err)
	}
	return holder, nil
}

// Forget drops the claim whoever holds it
func (s *ClaimStore) Forget(ctx context.Context, ticketID string) error {
	return s.client.rdb.Del(ctx, s.key(ticketID)).Err()
}
