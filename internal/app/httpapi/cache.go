package httpapi

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/arzwatch/arzwatch/pkg/logger"
)

// ResponseCache keeps marshaled price responses in Redis so repeated reads
// within the TTL skip the snapshot store. A nil client disables caching.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewResponseCache creates a cache with the given TTL. ttl <= 0 defaults
// to five minutes, matching the upstream refresh cadence.
func NewResponseCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *ResponseCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ResponseCache{client: client, ttl: ttl, log: log}
}

// Get returns the cached body for key, if present. Cache failures degrade
// to a miss.
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	body, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).WithField("key", key).Warn("response cache read failed")
		}
		return nil, false
	}
	return body, true
}

// Set stores the body under key for the cache TTL.
func (c *ResponseCache) Set(ctx context.Context, key string, body []byte) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, key, body, c.ttl).Err(); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("response cache write failed")
	}
}
