package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ResponseCache keeps rendered JSON responses in redis. A cache failure is
// never an error, just a slower request.
type ResponseCache struct {
	cache *cache.Cache[string]
}

func NewResponseCache(client redis.UniversalClient) *ResponseCache {
	redisStore := redisstore.NewRedis(client)

	return &ResponseCache{
		cache: cache.New[string](redisStore),
	}
}

func cacheKey(endpoint string, lineNumber string, dates DateRange) string {
	if lineNumber == "" {
		return fmt.Sprintf("stats:%s:%s", endpoint, dates)
	}

	return fmt.Sprintf("stats:%s:%s:%s", endpoint, lineNumber, dates)
}

// ttlFor widens with the window: a month of history changes much slower
// than today's numbers.
func ttlFor(dates DateRange) time.Duration {
	switch days := dates.Days(); {
	case days <= 1:
		return 5 * time.Minute
	case days <= 7:
		return 30 * time.Minute
	default:
		return 6 * time.Hour
	}
}

func (c *ResponseCache) Get(ctx context.Context, endpoint string, lineNumber string, dates DateRange) []byte {
	value, err := c.cache.Get(ctx, cacheKey(endpoint, lineNumber, dates))
	if err != nil || value == "" {
		return nil
	}

	return []byte(value)
}

func (c *ResponseCache) Set(ctx context.Context, endpoint string, lineNumber string, dates DateRange, payload []byte) {
	key := cacheKey(endpoint, lineNumber, dates)

	err := c.cache.Set(ctx, key, string(payload), store.WithExpiration(ttlFor(dates)))
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache stats response")
	}
}
