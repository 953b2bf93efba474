package refdata

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/praxis-booking/pkg/logging"
)

const cacheKeyPrefix = "praxis:refdata:"

// Cached is a read-through Redis cache in front of another catalog. Only hits
// are cached so newly added master data is visible immediately. Redis errors
// fall through to the backing catalog.
type Cached struct {
	next   Catalog
	redis  redis.Cmdable
	ttl    time.Duration
	logger *logging.Logger
}

func NewCached(next Catalog, client redis.Cmdable, ttl time.Duration, logger *logging.Logger) *Cached {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cached{next: next, redis: client, ttl: ttl, logger: logger}
}

func cacheKey(kind Kind, scope, id uuid.UUID) string {
	return cacheKeyPrefix + string(kind) + ":" + scope.String() + ":" + id.String()
}

func (c *Cached) Contains(ctx context.Context, kind Kind, scope, id uuid.UUID) (bool, error) {
	if c.redis == nil {
		return c.next.Contains(ctx, kind, scope, id)
	}
	key := cacheKey(kind, scope, id)
	_, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("refdata cache read failed", "error", err, "kind", string(kind))
	}

	ok, err := c.next.Contains(ctx, kind, scope, id)
	if err != nil || !ok {
		return ok, err
	}
	if err := c.redis.Set(ctx, key, "1", c.ttl).Err(); err != nil {
		c.logger.Warn("refdata cache write failed", "error", err, "kind", string(kind))
	}
	return true, nil
}
