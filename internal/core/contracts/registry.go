package contracts

import (
	"context"

	"chatsync/internal/core/domain"
)

// Handler receives one routed push event. It runs on the dispatch goroutine
// and must not block.
type Handler func(ctx context.Context, ev domain.PushEvent)

// Router fans decoded events out to subscribers by kind.
type Router interface {
	// Subscribe registers h for kind. The returned func removes it and is safe to call twice.
	Subscribe(kind domain.EventKind, h Handler) (unsubscribe func())
	// SubscribeAll registers h for every kind, including unknown ones.
	SubscribeAll(h Handler) (unsubscribe func())
	// Dispatch delivers ev to subscribers in registration order.
	Dispatch(ctx context.Context, ev domain.PushEvent)
}
