package registry

import (
	"context"
	"log/slog"
	"sync"

	"chatsync/internal/core/contracts"
	"chatsync/internal/core/domain"
	"chatsync/pkg/logging"
)

type subscription struct {
	id uint64
	h  contracts.Handler
}

// Registry is the event router: kind → ordered subscribers.
type Registry struct {
	mu     sync.RWMutex
	kinds  map[domain.EventKind][]subscription
	all    []subscription
	nextID uint64
	log    *slog.Logger
}

var _ contracts.Router = (*Registry)(nil)

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		kinds: make(map[domain.EventKind][]subscription),
		log:   log,
	}
}

func (r *Registry) Subscribe(kind domain.EventKind, h contracts.Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.kinds[kind] = append(r.kinds[kind], subscription{id: id, h: h})
	return func() { r.unsubscribe(kind, id) }
}

func (r *Registry) SubscribeAll(h contracts.Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.all = append(r.all, subscription{id: id, h: h})
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.all = without(r.all, id)
	}
}

func (r *Registry) unsubscribe(kind domain.EventKind, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := without(r.kinds[kind], id)
	if len(subs) == 0 {
		delete(r.kinds, kind)
		return
	}
	r.kinds[kind] = subs
}

// without copies so a dispatch holding the old slice is unaffected.
func without(subs []subscription, id uint64) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) Subscribers(kind domain.EventKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kinds[kind])
}

// Dispatch runs kind subscribers, then catch-all subscribers, synchronously.
// It stops as soon as ctx is cancelled.
func (r *Registry) Dispatch(ctx context.Context, ev domain.PushEvent) {
	r.mu.RLock()
	subs := r.kinds[ev.Kind]
	all := r.all
	r.mu.RUnlock()
	if len(subs) == 0 {
		r.log.DebugContext(ctx, "registry - dispatch - no subscriber", logging.Kind(string(ev.Kind)))
	}
	for _, list := range [][]subscription{subs, all} {
		for _, s := range list {
			if ctx.Err() != nil {
				return
			}
			r.call(ctx, s, ev)
		}
	}
}

func (r *Registry) call(ctx context.Context, s subscription, ev domain.PushEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.ErrorContext(ctx, "registry - dispatch - subscriber panicked",
				logging.Kind(string(ev.Kind)), "subscription", s.id, "panic", rec)
		}
	}()
	s.h(ctx, ev)
}
