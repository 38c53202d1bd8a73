package redis

import (
	"context"

	"chatsync/internal/core/contracts"

	"github.com/redis/go-redis/v9"
)

const defaultMaxLen = 1000

// NotificationStream appends notifications to capped redis streams, one
// stream per topic.
type NotificationStream struct {
	rdb    redis.Cmdable
	prefix string
	maxLen int64
}

var _ contracts.NotificationQueue = (*NotificationStream)(nil)

func NewNotificationStream(rdb redis.Cmdable, prefix string, maxLen int64) *NotificationStream {
	if prefix == "" {
		prefix = "notifications"
	}
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &NotificationStream{rdb: rdb, prefix: prefix, maxLen: maxLen}
}

func (q *NotificationStream) StreamKey(topic string) string {
	return q.prefix + ":" + topic
}

func (q *NotificationStream) PublishToStream(ctx context.Context, topic string, payload []byte) error {
	return q.rdb.XAdd(ctx, q.XAddArgs(topic, payload)).Err()
}

func (q *NotificationStream) XAddArgs(topic string, payload []byte) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: q.StreamKey(topic),
		MaxLen: q.maxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"data": payload},
	}
}
