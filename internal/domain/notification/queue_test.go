package notification

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisQueueCapsLength(t *testing.T) {
	client := openRedis(t)
	ctx := context.Background()
	key := "economy:test:notifications:" + uuid.NewString()
	t.Cleanup(func() { client.Del(context.Background(), key) })

	q := NewRedisQueue(client, key, 2)
	for _, title := range []string{"first", "second", "third"} {
		require.NoError(t, q.Enqueue(ctx, &Notification{ID: uuid.New(), Type: TypeVoucherRedeemed, Title: title}))
	}

	pending, err := q.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "third", pending[0].Title)
	assert.Equal(t, "second", pending[1].Title)
}
