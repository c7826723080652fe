package services

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const claimKey = "stackmgr:install:claim"

// redisClaimer uses SETNX with a TTL as the installation claim.
type redisClaimer struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisClaimer(rdb *redis.Client, ttl time.Duration) Claimer {
	return &redisClaimer{rdb: rdb, ttl: ttl}
}

func (c *redisClaimer) Claim(ctx context.Context) (bool, error) {
	return c.rdb.SetNX(ctx, claimKey, time.Now().UTC().Format(time.RFC3339), c.ttl).Result()
}

func (c *redisClaimer) Release(ctx context.Context) error {
	return c.rdb.Del(ctx, claimKey).Err()
}
