package services

import (
	"context"
	"log/slog"

	"chatsync/internal/core/contracts"
	"chatsync/internal/core/domain"
	"chatsync/pkg/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var reconcileTracer = otel.Tracer("reconciler")

// listRowFields are the conversation fields patched in place in list rows.
var listRowFields = []string{"name", "avatar"}

type IReconciler interface {
	// Apply folds one push event into the read-model cache. Failures are
	// logged, never returned: a bad event must not stop the dispatch loop.
	Apply(ctx context.Context, ev domain.PushEvent)
	// Register subscribes Apply to every inbound kind it understands.
	Register(router contracts.Router) (unsubscribe func())
}

type Reconciler struct {
	log   *slog.Logger
	store contracts.Store
}

func NewReconciler(log *slog.Logger, store contracts.Store) *Reconciler {
	return &Reconciler{
		log:   log,
		store: store,
	}
}

func (r *Reconciler) Register(router contracts.Router) func() {
	kinds := []domain.EventKind{
		domain.KindMessage,
		domain.KindConversationUpdated,
		domain.KindConversationDeleted,
		domain.KindParticipantJoined,
		domain.KindParticipantLeft,
		domain.KindParticipantInvited,
		domain.KindParticipantKicked,
	}
	unsubs := make([]func(), 0, len(kinds))
	for _, k := range kinds {
		unsubs = append(unsubs, router.Subscribe(k, r.Apply))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (r *Reconciler) Apply(ctx context.Context, ev domain.PushEvent) {
	log := logging.FromContextOr(ctx, r.log).With(logging.Kind(string(ev.Kind)))
	ctx, span := reconcileTracer.Start(ctx, "Reconciler.Apply")
	defer span.End()
	span.SetAttributes(attribute.String("event.kind", string(ev.Kind)))

	rec, err := ev.Record()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad payload")
		log.WarnContext(ctx, "reconciler - apply - undecodable payload", logging.Err(err))
		return
	}
	convID, err := ev.ConversationID()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no conversation")
		log.WarnContext(ctx, "reconciler - apply - event without conversation", logging.Err(err))
		return
	}
	span.SetAttributes(attribute.String("conversation.id", convID))
	log = log.With(logging.Conversation(convID))

	var touched int
	r.store.Batch(func(tx contracts.Store) {
		switch {
		case ev.Kind == domain.KindMessage:
			touched = r.applyMessage(tx, convID, rec)
		case ev.Kind == domain.KindConversationUpdated:
			touched = r.applyConversationUpdated(tx, convID, rec)
		case ev.Kind == domain.KindConversationDeleted:
			touched = r.applyConversationDeleted(tx, convID)
		case ev.Kind.IsParticipantChange():
			touched = r.applyParticipantChange(tx, convID)
		default:
			log.DebugContext(ctx, "reconciler - apply - kind has no merge rule")
		}
	})
	span.SetAttributes(attribute.Int("cache.entries_touched", touched))
	log.DebugContext(ctx, "reconciler - apply - done", "entries", touched)
}

// applyMessage appends to every cached timeline of the conversation, then
// marks list previews stale. Timelines are always mutated first.
func (r *Reconciler) applyMessage(tx contracts.Store, convID string, msg domain.Record) int {
	if msg.ID() == "" {
		r.log.Warn("reconciler - message - record without id", logging.Conversation(convID), logging.Err(domain.ErrMissingRecordID))
		return 0
	}
	touched := 0
	for _, key := range tx.Keys(domain.MessagesPrefix(convID)) {
		if tx.Patch(key, func(e *domain.CacheEntry) bool {
			return e.AppendRecord(msg.Clone())
		}) {
			touched++
		}
	}
	touched += tx.InvalidateByPrefix(domain.ConversationUsersPrefix(convID))
	touched += r.invalidateListsHolding(tx, convID)
	return touched
}

func (r *Reconciler) invalidateListsHolding(tx contracts.Store, convID string) int {
	keys := tx.Keys(domain.ConversationsPrefix())
	var holding []domain.QueryKey
	for _, key := range keys {
		if e, ok := tx.Get(key); ok && e.Contains(convID) {
			holding = append(holding, key)
		}
	}
	// a conversation missing from every cached page may belong on page one
	if len(holding) == 0 {
		holding = keys
	}
	for _, key := range holding {
		tx.Invalidate(key)
	}
	return len(holding)
}

func (r *Reconciler) applyConversationUpdated(tx contracts.Store, convID string, conv domain.Record) int {
	touched := 0
	if tx.Patch(domain.ConversationKey(convID), func(e *domain.CacheEntry) bool {
		if e.Data == nil {
			e.Data = domain.Record{}
		}
		e.Data.Merge(conv.Clone())
		return true
	}) {
		touched++
	}
	row := domain.Record{}
	for _, f := range listRowFields {
		if v, ok := conv[f]; ok {
			row[f] = v
		}
	}
	if len(row) > 0 {
		for _, key := range tx.Keys(domain.ConversationsPrefix()) {
			if tx.Patch(key, func(e *domain.CacheEntry) bool {
				return e.UpdateRecord(convID, func(rec domain.Record) { rec.Merge(row.Clone()) })
			}) {
				touched++
			}
		}
	}
	touched += tx.InvalidateByPrefix(domain.ParticipantsPrefix(convID))
	return touched
}

func (r *Reconciler) applyConversationDeleted(tx contracts.Store, convID string) int {
	touched := 0
	if _, ok := tx.Get(domain.ConversationKey(convID)); ok {
		tx.Remove(domain.ConversationKey(convID))
		touched++
	}
	touched += tx.RemoveByPrefix(domain.ParticipantsPrefix(convID))
	touched += tx.RemoveByPrefix(domain.ConversationUsersPrefix(convID))
	touched += tx.InvalidateByPrefix(domain.MessagesPrefix(convID))
	for _, key := range tx.Keys(domain.ConversationsPrefix()) {
		if tx.Patch(key, func(e *domain.CacheEntry) bool { return e.RemoveRecord(convID) }) {
			touched++
		}
	}
	return touched
}

// Membership lists are refetched, never patched.
func (r *Reconciler) applyParticipantChange(tx contracts.Store, convID string) int {
	return tx.InvalidateByPrefix(domain.ParticipantsPrefix(convID)) +
		tx.InvalidateByPrefix(domain.ConversationUsersPrefix(convID))
}
