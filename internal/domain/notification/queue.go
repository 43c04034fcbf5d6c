package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultQueueKey is the Redis list the delivery service consumes.
const DefaultQueueKey = "economy:notifications"

// Queue hands notifications to the delivery service.
type Queue interface {
	Enqueue(ctx context.Context, n *Notification) error
}

// RedisQueue pushes JSON notifications onto a Redis list.
type RedisQueue struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewRedisQueue creates a queue on key. maxLen caps the list so an absent consumer
// cannot grow it without bound; zero disables the cap.
func NewRedisQueue(client *redis.Client, key string, maxLen int64) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{client: client, key: key, maxLen: maxLen}
}

func (q *RedisQueue) Enqueue(ctx context.Context, n *Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, q.key, payload)
	if q.maxLen > 0 {
		pipe.LTrim(ctx, q.key, 0, q.maxLen-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// Pending returns up to limit queued notifications, newest first, without removing them.
func (q *RedisQueue) Pending(ctx context.Context, limit int64) ([]Notification, error) {
	raw, err := q.client.LRange(ctx, q.key, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Notification, 0, len(raw))
	for _, item := range raw {
		var n Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			log.Warn().Err(err).Msg("skipping malformed notification")
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// LogQueue writes notifications to the log. Used when Redis is not configured.
type LogQueue struct{}

func (LogQueue) Enqueue(ctx context.Context, n *Notification) error {
	ev := log.Info().Str("notification_type", string(n.Type)).Str("title", n.Title)
	if n.UserID != nil {
		ev = ev.Str("user_id", n.UserID.String())
	}
	if n.Audience != "" {
		ev = ev.Str("audience", n.Audience)
	}
	ev.Interface("data", n.Data).Msg("notification")
	return nil
}
