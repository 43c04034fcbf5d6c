package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Throttle caps redeem requests per user in a fixed window using a Redis counter.
// It runs before any database work and fails open when Redis is missing or erroring.
type Throttle struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

func NewThrottle(redisClient *redis.Client, limit int, window time.Duration) *Throttle {
	return &Throttle{redis: redisClient, limit: limit, window: window}
}

// Allow counts one request and reports whether the caller is still under the limit.
func (t *Throttle) Allow(ctx context.Context, userID uuid.UUID) bool {
	if t == nil || t.redis == nil || t.limit <= 0 {
		return true
	}

	key := fmt.Sprintf("ratelimit:voucher:%s", userID)
	count, err := t.redis.Incr(ctx, key).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		t.redis.Expire(ctx, key, t.window)
	}
	return count <= int64(t.limit)
}
