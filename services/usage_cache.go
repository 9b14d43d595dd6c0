package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// UsageCache fronts the UsageStore with two tiers: an in-process map and a
// redis blob that survives process restarts. Neither tier expires; any
// write path that changes the store must call Invalidate. Other components
// never touch the tiers directly.
type UsageCache struct {
	store *UsageStore
	redis *redis.Client

	mu     sync.RWMutex
	memory map[uint]map[string]int
}

func NewUsageCache(store *UsageStore, redisClient *redis.Client) *UsageCache {
	return &UsageCache{
		store:  store,
		redis:  redisClient,
		memory: make(map[uint]map[string]int),
	}
}

func usageCacheKey(userID uint) string {
	return fmt.Sprintf("usage:%d", userID)
}

// GetUsageData reads through tier 1, tier 2, then the store, populating
// the tiers on the way back. Redis failures are logged and skipped; a
// store failure propagates so the caller can decide how degraded to run.
func (c *UsageCache) GetUsageData(ctx context.Context, userID uint) (map[string]int, error) {
	if userID == 0 {
		return map[string]int{}, nil
	}

	c.mu.RLock()
	if counts, ok := c.memory[userID]; ok {
		copied := copyCounts(counts)
		c.mu.RUnlock()
		return copied, nil
	}
	c.mu.RUnlock()

	if counts := c.readDeviceTier(ctx, userID); counts != nil {
		c.mu.Lock()
		c.memory[userID] = copyCounts(counts)
		c.mu.Unlock()
		return counts, nil
	}

	counts, err := c.store.GetAll(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.Prime(ctx, userID, counts)
	return copyCounts(counts), nil
}

// Invalidate clears both tiers without touching the store. The next read
// falls through to the system of record.
func (c *UsageCache) Invalidate(ctx context.Context, userID uint) {
	if userID == 0 {
		return
	}

	c.mu.Lock()
	delete(c.memory, userID)
	c.mu.Unlock()

	if err := c.redis.Del(ctx, usageCacheKey(userID)).Err(); err != nil {
		log.Printf("Failed to invalidate device usage cache for user %d: %v", userID, err)
	}
}

// Prime seeds both tiers with a freshly computed usage record.
func (c *UsageCache) Prime(ctx context.Context, userID uint, counts map[string]int) {
	if userID == 0 {
		return
	}

	c.mu.Lock()
	c.memory[userID] = copyCounts(counts)
	c.mu.Unlock()

	data, err := json.Marshal(counts)
	if err != nil {
		log.Printf("Failed to marshal usage record for user %d: %v", userID, err)
		return
	}
	// No TTL: correctness depends on explicit invalidation, not expiry.
	if err := c.redis.Set(ctx, usageCacheKey(userID), data, 0).Err(); err != nil {
		log.Printf("Failed to store usage record in redis for user %d: %v", userID, err)
	}
}

func (c *UsageCache) readDeviceTier(ctx context.Context, userID uint) map[string]int {
	data, err := c.redis.Get(ctx, usageCacheKey(userID)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("Redis error reading usage cache for user %d: %v", userID, err)
		}
		return nil
	}

	var counts map[string]int
	if err := json.Unmarshal([]byte(data), &counts); err != nil {
		log.Printf("Failed to unmarshal cached usage record for user %d: %v", userID, err)
		return nil
	}
	return counts
}

func copyCounts(counts map[string]int) map[string]int {
	copied := make(map[string]int, len(counts))
	for key, count := range counts {
		copied[key] = count
	}
	return copied
}
