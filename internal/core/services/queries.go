package services

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"

	"chatsync/internal/core/contracts"
	"chatsync/internal/core/domain"
	"chatsync/pkg/logging"
)

type IQueryService interface {
	// LoadConversations caches one page of the conversation list.
	LoadConversations(ctx context.Context, page, pageSize int) (domain.CacheEntry, error)
	// LoadConversation caches the single-conversation view.
	LoadConversation(ctx context.Context, conversationID string) (domain.CacheEntry, error)
	// LoadMessages caches the newest timeline page, replacing older pages.
	LoadMessages(ctx context.Context, conversationID string, limit int) (domain.CacheEntry, error)
	// LoadOlderMessages follows the last page cursor and appends the next
	// page, skipping records already cached. It returns the records added.
	LoadOlderMessages(ctx context.Context, conversationID string, limit int) (int, error)
	LoadParticipants(ctx context.Context, conversationID string, page, pageSize int) (domain.CacheEntry, error)
	// Refresh refetches whatever key names.
	Refresh(ctx context.Context, key domain.QueryKey) error
	// RefreshStale refetches every Stale entry and returns how many it tried.
	RefreshStale(ctx context.Context) int
}

type QueryService struct {
	log   *slog.Logger
	api   contracts.ChatAPI
	store contracts.Store
}

func NewQueryService(log *slog.Logger, api contracts.ChatAPI, store contracts.Store) *QueryService {
	return &QueryService{
		log:   log,
		api:   api,
		store: store,
	}
}

func (q *QueryService) LoadConversations(ctx context.Context, page, pageSize int) (domain.CacheEntry, error) {
	key := domain.ConversationsKey(page, pageSize)
	return q.load(ctx, key, func() (domain.CacheEntry, error) {
		rows, err := q.api.GetConversations(ctx, page, pageSize)
		if err != nil {
			return domain.CacheEntry{}, err
		}
		return readyPages(domain.Page{Records: rows}), nil
	})
}

func (q *QueryService) LoadConversation(ctx context.Context, conversationID string) (domain.CacheEntry, error) {
	key := domain.ConversationKey(conversationID)
	return q.load(ctx, key, func() (domain.CacheEntry, error) {
		conv, err := q.api.GetConversation(ctx, conversationID)
		if err != nil {
			return domain.CacheEntry{}, err
		}
		return domain.CacheEntry{Status: domain.StatusReady, Data: conv}, nil
	})
}

func (q *QueryService) LoadMessages(ctx context.Context, conversationID string, limit int) (domain.CacheEntry, error) {
	key := domain.MessagesKey(conversationID, limit)
	return q.load(ctx, key, func() (domain.CacheEntry, error) {
		mp, err := q.api.GetMessages(ctx, conversationID, "", limit)
		if err != nil {
			return domain.CacheEntry{}, err
		}
		e := readyPages()
		e.AppendPage(messagePage(mp))
		return e, nil
	})
}

func (q *QueryService) LoadOlderMessages(ctx context.Context, conversationID string, limit int) (int, error) {
	key := domain.MessagesKey(conversationID, limit)
	log := q.log.With(logging.Key(key.String()))
	cur, ok := q.store.Get(key)
	if !ok {
		return 0, fmt.Errorf("load older messages %s: %w", conversationID, domain.ErrEntryNotFound)
	}
	cursor := cur.LastCursor()
	if cursor == "" {
		log.DebugContext(ctx, "queries - load older messages - timeline fully loaded")
		return 0, nil
	}
	mp, err := q.api.GetMessages(ctx, conversationID, cursor, limit)
	if err != nil {
		log.ErrorContext(ctx, "queries - load older messages - fetch failed", logging.Err(err))
		return 0, fmt.Errorf("load older messages %s: %w", conversationID, err)
	}
	var added int
	patched := q.store.Patch(key, func(e *domain.CacheEntry) bool {
		// another load got there first
		if e.LastCursor() != cursor {
			return false
		}
		added = e.AppendPage(messagePage(mp))
		return true
	})
	if !patched {
		log.DebugContext(ctx, "queries - load older messages - cursor moved, page discarded")
		return 0, nil
	}
	log.DebugContext(ctx, "queries - load older messages - page appended", "added", added)
	return added, nil
}

func (q *QueryService) LoadParticipants(ctx context.Context, conversationID string, page, pageSize int) (domain.CacheEntry, error) {
	key := domain.ParticipantsKey(conversationID, page, pageSize)
	return q.load(ctx, key, func() (domain.CacheEntry, error) {
		rows, err := q.api.GetParticipants(ctx, conversationID, page, pageSize)
		if err != nil {
			return domain.CacheEntry{}, err
		}
		return readyPages(domain.Page{Records: rows}), nil
	})
}

func (q *QueryService) Refresh(ctx context.Context, key domain.QueryKey) error {
	var err error
	p := key.Params
	switch {
	case key.Resource == domain.ResourceConversations && len(p) == 2:
		page, size, perr := intParams(p[0], p[1])
		if perr != nil {
			return fmt.Errorf("refresh %s: %w", key, perr)
		}
		_, err = q.LoadConversations(ctx, page, size)
	case key.Resource == domain.ResourceConversation && len(p) == 1:
		_, err = q.LoadConversation(ctx, p[0])
	case key.Resource == domain.ResourceMessages && len(p) == 2:
		limit, _, perr := intParams(p[1], "0")
		if perr != nil {
			return fmt.Errorf("refresh %s: %w", key, perr)
		}
		// older pages are dropped; they load again on demand
		_, err = q.LoadMessages(ctx, p[0], limit)
	case key.Resource == domain.ResourceParticipants && len(p) == 3:
		page, size, perr := intParams(p[1], p[2])
		if perr != nil {
			return fmt.Errorf("refresh %s: %w", key, perr)
		}
		_, err = q.LoadParticipants(ctx, p[0], page, size)
	default:
		// no fetcher for this key: drop it so the next reader starts clean
		q.store.Remove(key)
		q.log.DebugContext(ctx, "queries - refresh - no fetcher, entry dropped", logging.Key(key.String()))
		return nil
	}
	return err
}

func (q *QueryService) RefreshStale(ctx context.Context) int {
	resources := []string{
		domain.ResourceConversations,
		domain.ResourceConversation,
		domain.ResourceMessages,
		domain.ResourceParticipants,
		domain.ResourceConversationUsers,
	}
	n := 0
	for _, res := range resources {
		for _, key := range q.store.Keys(domain.NewQueryKey(res)) {
			if ctx.Err() != nil {
				return n
			}
			e, ok := q.store.Get(key)
			if !ok || e.Status != domain.StatusStale {
				continue
			}
			n++
			if err := q.Refresh(ctx, key); err != nil {
				q.log.WarnContext(ctx, "queries - refresh stale - refetch failed", logging.Key(key.String()), logging.Err(err))
			}
		}
	}
	return n
}

// load marks key Pending, runs fetch and stores the outcome. A failed fetch
// keeps whatever pages were cached and flags the entry Error. Pushes applied
// while the fetch was in flight are folded into the result; see settle.
func (q *QueryService) load(
	ctx context.Context,
	key domain.QueryKey,
	fetch func() (domain.CacheEntry, error),
) (domain.CacheEntry, error) {
	log := q.log.With(logging.Key(key.String()))
	var before domain.CacheEntry
	q.store.Batch(func(tx contracts.Store) {
		if !tx.Patch(key, func(e *domain.CacheEntry) bool {
			e.Status = domain.StatusPending
			return true
		}) {
			tx.Set(key, domain.CacheEntry{Status: domain.StatusPending})
		}
		before, _ = tx.Get(key)
	})

	entry, err := fetch()
	if err != nil {
		q.store.Patch(key, func(e *domain.CacheEntry) bool {
			e.Status = domain.StatusError
			e.Err = err.Error()
			return true
		})
		log.ErrorContext(ctx, "queries - load - fetch failed", logging.Err(err))
		return domain.CacheEntry{}, fmt.Errorf("load %s: %w", key, err)
	}
	entry.Key = key

	var (
		stored domain.CacheEntry
		kept   bool
	)
	q.store.Batch(func(tx contracts.Store) {
		cur, ok := tx.Get(key)
		if !ok {
			return
		}
		if cur.Gen != before.Gen {
			entry = settle(before, cur, entry)
		}
		tx.Set(key, entry)
		stored, kept = tx.Get(key)
	})
	if !kept {
		// removed mid-flight, e.g. the conversation was deleted
		log.DebugContext(ctx, "queries - load - entry dropped while fetching, result discarded")
		return entry, nil
	}
	log.DebugContext(ctx, "queries - load - cached", "records", len(stored.Records()), logging.State(stored.Status.String()))
	return stored, nil
}

// settle reconciles a fetch result with pushes applied between before (the
// entry when the fetch started) and cur. Records pushed meanwhile are
// appended unless the snapshot already has them. The result is Ready only if
// those appends were the sole change; an invalidation, removal or edit leaves
// it Stale so the next refresh fetches again.
func settle(before, cur, fetched domain.CacheEntry) domain.CacheEntry {
	known := before.IDs()
	var rest []domain.Record
	for _, r := range cur.Records() {
		if _, ok := known[r.ID()]; ok {
			rest = append(rest, r)
			continue
		}
		if len(fetched.Pages) == 0 && fetched.Data == nil {
			fetched.Pages = []domain.Page{{}}
		}
		if len(fetched.Pages) > 0 && !fetched.Contains(r.ID()) {
			last := len(fetched.Pages) - 1
			fetched.Pages[last].Records = append(fetched.Pages[last].Records, r)
		}
	}
	appendsOnly := cur.Status == domain.StatusPending &&
		reflect.DeepEqual(before.Records(), rest) &&
		reflect.DeepEqual(before.Data, cur.Data)
	if !appendsOnly {
		fetched.Status = domain.StatusStale
	}
	return fetched
}

func readyPages(pages ...domain.Page) domain.CacheEntry {
	return domain.CacheEntry{Status: domain.StatusReady, Pages: pages}
}

func messagePage(mp domain.MessagePage) domain.Page {
	p := domain.Page{Records: mp.Messages}
	if mp.HasMore {
		p.Cursor = mp.NextCursor
	}
	return p
}

func intParams(a, b string) (int, int, error) {
	x, err := strconv.Atoi(a)
	if err != nil {
		return 0, 0, err
	}
	y, err := strconv.Atoi(b)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}
