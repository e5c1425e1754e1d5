package attendance

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDebouncer reserves a scanned code for a short cooldown so a double
// read from one physical tap classifies once. SETNX gives the reservation
// atomicity across scanner stations.
type RedisDebouncer struct {
	client   *redis.Client
	cooldown time.Duration
}

// NewRedisDebouncer creates a debouncer with the given cooldown window.
func NewRedisDebouncer(client *redis.Client, cooldown time.Duration) *RedisDebouncer {
	if cooldown <= 0 {
		cooldown = 3 * time.Second
	}
	return &RedisDebouncer{client: client, cooldown: cooldown}
}

// Reserve returns false when the code was already seen inside the cooldown.
func (d *RedisDebouncer) Reserve(ctx context.Context, code string) (bool, error) {
	return d.client.SetNX(ctx, "hadirku:scan:cooldown:"+code, 1, d.cooldown).Result()
}
