package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"chatsync/internal/core/contracts"
	"chatsync/internal/core/domain"
	"chatsync/pkg/logging"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultNotifyBuffer   = 64
	defaultNotifyDedup    = 512
	defaultPublishTimeout = 3 * time.Second
)

// Notification is the record published for every message the user did not
// send.
type Notification struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id,omitempty"`
	Text           string    `json:"text,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}

type NotifierConfig struct {
	// Buffer bounds notifications waiting for the publisher; overflow is dropped.
	Buffer int
	// Dedup is how many recent message ids are remembered.
	Dedup          int
	PublishTimeout time.Duration
}

// NotificationService forwards incoming messages to a queue for consumers
// outside this process. Notify only enqueues; Run does the publishing, so a
// slow queue never holds up event dispatch.
type NotificationService struct {
	log     *slog.Logger
	queue   contracts.NotificationQueue
	userID  string
	now     func() time.Time
	timeout time.Duration
	pending chan Notification
	seen    *lru.Cache[string, struct{}]
}

func NewNotificationService(log *slog.Logger, queue contracts.NotificationQueue, userID string, cfg NotifierConfig) *NotificationService {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultNotifyBuffer
	}
	if cfg.Dedup <= 0 {
		cfg.Dedup = defaultNotifyDedup
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	// size is positive, New cannot fail
	seen, _ := lru.New[string, struct{}](cfg.Dedup)
	return &NotificationService{
		log:     log,
		queue:   queue,
		userID:  userID,
		now:     time.Now,
		timeout: cfg.PublishTimeout,
		pending: make(chan Notification, cfg.Buffer),
		seen:    seen,
	}
}

func (s *NotificationService) Register(router contracts.Router) (unsubscribe func()) {
	return router.Subscribe(domain.KindMessage, s.Notify)
}

// Notify queues a notification for a message from someone else. A message id
// already queued is skipped, so redelivered events notify once.
func (s *NotificationService) Notify(ctx context.Context, ev domain.PushEvent) {
	var msg domain.Message
	if err := json.Unmarshal(ev.Data, &msg); err != nil || msg.ID == "" {
		s.log.DebugContext(ctx, "notifier - notify - not a message record", logging.Err(err))
		return
	}
	if msg.UserID != "" && msg.UserID == s.userID {
		return
	}
	if s.seen.Contains(msg.ID) {
		s.log.DebugContext(ctx, "notifier - notify - duplicate message skipped", logging.Record(msg.ID))
		return
	}
	n := Notification{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.UserID,
		Text:           msg.Text,
		ReceivedAt:     s.now().UTC(),
	}
	select {
	case s.pending <- n:
		s.seen.Add(msg.ID, struct{}{})
	default:
		s.log.WarnContext(ctx, "notifier - notify - buffer full, notification dropped", logging.Conversation(msg.ConversationID), logging.Record(msg.ID))
	}
}

// Run publishes queued notifications until ctx is done.
func (s *NotificationService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-s.pending:
			s.publish(ctx, n)
		}
	}
}

func (s *NotificationService) publish(ctx context.Context, n Notification) {
	raw, err := json.Marshal(n)
	if err != nil {
		s.log.ErrorContext(ctx, "notifier - publish - encode failed", logging.Err(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.queue.PublishToStream(ctx, s.userID, raw); err != nil {
		s.log.ErrorContext(ctx, "notifier - publish - publish to stream failed", logging.Conversation(n.ConversationID), logging.Err(err))
		return
	}
	s.log.DebugContext(ctx, "notifier - publish - publish to stream success", logging.Conversation(n.ConversationID), logging.Record(n.MessageID))
}
