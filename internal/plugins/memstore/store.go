package memstore

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"chatsync/internal/core/contracts"
	"chatsync/internal/core/domain"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultSize = 512

// Store is an in-memory read-model cache. Least recently used entries are
// evicted once Size is reached, which stands in for query garbage collection.
type Store struct {
	mu        sync.RWMutex
	entries   *lru.Cache[string, *domain.CacheEntry]
	log       *slog.Logger
	lmu       sync.RWMutex
	listeners map[int]func(domain.QueryKey)
	nextID    int
	now       func() time.Time
	gen       uint64
}

var _ contracts.Store = (*Store)(nil)

func New(log *slog.Logger, size int) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		log:       log,
		listeners: make(map[int]func(domain.QueryKey)),
		now:       time.Now,
	}
	entries, err := lru.NewWithEvict(size, func(key string, _ *domain.CacheEntry) {
		s.log.Debug("memstore - evict - entry dropped", "key", key)
	})
	if err != nil {
		return nil, err
	}
	s.entries = entries
	return s, nil
}

// OnChange registers fn to be told about every key a write touched. It is
// called after the write lock is released.
func (s *Store) OnChange(fn func(domain.QueryKey)) (unsubscribe func()) {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.lmu.Unlock()
	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

func (s *Store) Len() int {
	return s.entries.Len()
}

func (s *Store) Get(key domain.QueryKey) (domain.CacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().Get(key)
}

func (s *Store) Keys(prefix domain.QueryKey) []domain.QueryKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().Keys(prefix)
}

func (s *Store) Set(key domain.QueryKey, entry domain.CacheEntry) {
	s.Batch(func(tx contracts.Store) { tx.Set(key, entry) })
}

func (s *Store) Patch(key domain.QueryKey, updater func(*domain.CacheEntry) bool) bool {
	var changed bool
	s.Batch(func(tx contracts.Store) { changed = tx.Patch(key, updater) })
	return changed
}

func (s *Store) Remove(key domain.QueryKey) {
	s.Batch(func(tx contracts.Store) { tx.Remove(key) })
}

func (s *Store) Invalidate(key domain.QueryKey) {
	s.Batch(func(tx contracts.Store) { tx.Invalidate(key) })
}

func (s *Store) InvalidateByPrefix(prefix domain.QueryKey) int {
	var n int
	s.Batch(func(tx contracts.Store) { n = tx.InvalidateByPrefix(prefix) })
	return n
}

func (s *Store) RemoveByPrefix(prefix domain.QueryKey) int {
	var n int
	s.Batch(func(tx contracts.Store) { n = tx.RemoveByPrefix(prefix) })
	return n
}

func (s *Store) Batch(fn func(tx contracts.Store)) {
	v := s.view()
	s.mu.Lock()
	func() {
		defer s.mu.Unlock()
		fn(v)
	}()
	s.notify(v.changed)
}

func (s *Store) view() *view {
	return &view{s: s}
}

func (s *Store) notify(keys []domain.QueryKey) {
	if len(keys) == 0 {
		return
	}
	s.lmu.RLock()
	fns := make([]func(domain.QueryKey), 0, len(s.listeners))
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.lmu.RUnlock()
	for _, k := range keys {
		for _, fn := range fns {
			fn(k)
		}
	}
}

// view performs the operations without locking; the caller holds s.mu.
type view struct {
	s       *Store
	changed []domain.QueryKey
}

func (v *view) nextGen() uint64 {
	v.s.gen++
	return v.s.gen
}

func (v *view) touch(key domain.QueryKey) {
	for _, k := range v.changed {
		if k.Equal(key) {
			return
		}
	}
	v.changed = append(v.changed, key)
}

func (v *view) Get(key domain.QueryKey) (domain.CacheEntry, bool) {
	e, ok := v.s.entries.Get(key.String())
	if !ok {
		return domain.CacheEntry{}, false
	}
	return e.Clone(), true
}

func (v *view) Set(key domain.QueryKey, entry domain.CacheEntry) {
	e := entry.Clone()
	e.Key = domain.NewQueryKey(key.Resource, slices.Clone(key.Params)...)
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = v.s.now()
	}
	e.Gen = v.nextGen()
	v.s.entries.Add(key.String(), &e)
	v.touch(key)
}

func (v *view) Patch(key domain.QueryKey, updater func(*domain.CacheEntry) bool) bool {
	e, ok := v.s.entries.Get(key.String())
	if !ok {
		return false
	}
	if !updater(e) {
		return false
	}
	e.UpdatedAt = v.s.now()
	e.Gen = v.nextGen()
	v.touch(key)
	return true
}

func (v *view) Remove(key domain.QueryKey) {
	if v.s.entries.Remove(key.String()) {
		v.touch(key)
	}
}

func (v *view) Invalidate(key domain.QueryKey) {
	e, ok := v.s.entries.Peek(key.String())
	if !ok || e.Status == domain.StatusStale || e.Status == domain.StatusError {
		return
	}
	e.Status = domain.StatusStale
	e.Gen = v.nextGen()
	v.touch(key)
}

func (v *view) InvalidateByPrefix(prefix domain.QueryKey) int {
	keys := v.Keys(prefix)
	for _, k := range keys {
		v.Invalidate(k)
	}
	return len(keys)
}

func (v *view) RemoveByPrefix(prefix domain.QueryKey) int {
	keys := v.Keys(prefix)
	for _, k := range keys {
		v.Remove(k)
	}
	return len(keys)
}

func (v *view) Keys(prefix domain.QueryKey) []domain.QueryKey {
	var out []domain.QueryKey
	for _, k := range v.s.entries.Keys() {
		e, ok := v.s.entries.Peek(k)
		if !ok || !e.Key.HasPrefix(prefix) {
			continue
		}
		out = append(out, domain.NewQueryKey(e.Key.Resource, slices.Clone(e.Key.Params)...))
	}
	slices.SortFunc(out, func(a, b domain.QueryKey) int {
		switch as, bs := a.String(), b.String(); {
		case as < bs:
			return -1
		case as > bs:
			return 1
		}
		return 0
	})
	return out
}

func (v *view) Batch(fn func(tx contracts.Store)) {
	fn(v)
}
