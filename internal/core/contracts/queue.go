package contracts

import "context"

// NotificationQueue hands notifications to out-of-process consumers.
type NotificationQueue interface {
	PublishToStream(ctx context.Context, topic string, payload []byte) error
}
