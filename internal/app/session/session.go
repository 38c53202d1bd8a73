package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"chatsync/internal/app/registry"
	"chatsync/internal/app/socket"
	"chatsync/internal/app/worker"
	"chatsync/internal/config"
	"chatsync/internal/core/contracts"
	"chatsync/internal/core/domain"
	"chatsync/internal/core/services"
	"chatsync/internal/plugins/api"
	"chatsync/internal/plugins/memstore"
	"chatsync/internal/plugins/redis"
	"chatsync/pkg/logging"
	"chatsync/pkg/middleware"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Deps overrides the default adapters. Zero fields are built from config.
type Deps struct {
	Dialer contracts.Dialer
	Clock  contracts.Clock
	API    contracts.ChatAPI
	Queue  contracts.NotificationQueue
}

// Session is one signed-in user's realtime state: the push connection, the
// read-model cache and everything that keeps the two consistent. It is built
// explicitly and owned by the caller; there is no package-level instance.
type Session struct {
	log        *slog.Logger
	cfg        *config.Config
	claims     services.SessionClaims
	store      *memstore.Store
	router     *registry.Registry
	reconciler *services.Reconciler
	queries    *services.QueryService
	worker     contracts.FrameWorker
	manager    *socket.Manager
	api        contracts.ChatAPI
	queue      contracts.NotificationQueue

	mu      sync.Mutex
	started bool
	runCtx  context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	bg      sync.WaitGroup
	unsubs  []func()
	rdb     *goredis.Client
	opened  bool
}

func New(log *slog.Logger, cfg *config.Config, deps Deps) (*Session, error) {
	claims, err := services.NewTokenService().Inspect(cfg.SessionToken)
	if err != nil {
		return nil, fmt.Errorf("session token: %w", err)
	}
	log = log.With(slog.String("user_id", claims.Subject))

	store, err := memstore.New(log, cfg.Cache.Size)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	settings, err := socket.SettingsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	dialer := deps.Dialer
	if dialer == nil {
		dialer = socket.NewDialer(*cfg.Socket)
	}
	chatAPI := deps.API
	if chatAPI == nil {
		client, err := api.NewChatClient(log, cfg, middleware.StaticToken(cfg.SessionToken))
		if err != nil {
			return nil, fmt.Errorf("api client: %w", err)
		}
		chatAPI = client
	}

	router := registry.NewRegistry(log)
	return &Session{
		log:        log,
		cfg:        cfg,
		claims:     claims,
		store:      store,
		router:     router,
		reconciler: services.NewReconciler(log, store),
		queries:    services.NewQueryService(log, chatAPI, store),
		worker:     worker.NewDispatchWorker(log, router),
		manager:    socket.NewManager(log, dialer, deps.Clock, settings),
		api:        chatAPI,
		queue:      deps.Queue,
	}, nil
}

// Init wires the event pipeline and opens the connection. A failed first dial
// is not an error: the manager keeps retrying in the background.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	unsubs := []func(){
		s.reconciler.Register(s.router),
		s.router.SubscribeAll(func(ctx context.Context, ev domain.PushEvent) {
			logging.FromContextOr(ctx, s.log).DebugContext(ctx, "session - event - received", logging.Kind(string(ev.Kind)))
		}),
	}
	var notifier *services.NotificationService
	if q := s.notificationQueue(ctx); q != nil {
		notifier = services.NewNotificationService(s.log, q, s.claims.Subject, services.NotifierConfig{
			PublishTimeout: s.cfg.Redis.WriteTimeout,
		})
		unsubs = append(unsubs, notifier.Register(s.router))
	}
	unsubs = append(unsubs, s.manager.OnStateChange(s.onStateChange))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.mu.Lock()
	s.runCtx, s.cancel, s.done, s.unsubs = runCtx, cancel, done, unsubs
	if notifier != nil {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			notifier.Run(runCtx)
		}()
	}
	s.mu.Unlock()
	go func() {
		defer close(done)
		s.worker.Run(runCtx, s.manager.Frames())
	}()

	if err := s.manager.Connect(ctx); err != nil {
		s.log.WarnContext(ctx, "session - init - first connect failed, retrying in background", logging.Err(err))
	}
	return nil
}

func (s *Session) notificationQueue(ctx context.Context) contracts.NotificationQueue {
	if s.queue != nil {
		return s.queue
	}
	if s.cfg.Redis == nil || s.cfg.Redis.URL == "" {
		return nil
	}
	rdb, err := redis.NewRedisClient(ctx, *s.cfg.Redis)
	if err != nil {
		s.log.WarnContext(ctx, "session - init - redis unavailable, notifications off", logging.Err(err))
		return nil
	}
	s.mu.Lock()
	s.rdb = rdb
	s.mu.Unlock()
	return redis.NewNotificationStream(rdb, s.cfg.Redis.Stream, s.cfg.Redis.MaxLen)
}

// onStateChange refetches whatever went stale while the connection was down.
// The refetch is bound to the session run context; Teardown waits for it.
func (s *Session) onStateChange(state domain.ConnState) {
	if state != domain.StateOpen {
		return
	}
	s.mu.Lock()
	reconnect := s.opened
	s.opened = true
	runCtx := s.runCtx
	if !reconnect || runCtx == nil {
		s.mu.Unlock()
		return
	}
	s.bg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.bg.Done()
		n := s.queries.RefreshStale(runCtx)
		s.log.InfoContext(runCtx, "session - reconnect - stale entries refetched", "entries", n)
	}()
}

// Teardown disconnects and stops the worker, the notification publisher and
// any reconnect refetch. It blocks until they have returned, so no event or
// fetch result is applied after it.
func (s *Session) Teardown() error {
	s.manager.Disconnect()

	s.mu.Lock()
	cancel, done, rdb := s.cancel, s.done, s.rdb
	s.runCtx, s.cancel, s.done, s.rdb = nil, nil, nil, nil
	unsubs := s.unsubs
	s.unsubs = nil
	s.started = false
	s.opened = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.bg.Wait()
	for _, u := range unsubs {
		u()
	}
	var errs []error
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Send forwards an outbound frame. Frames sent while disconnected are dropped.
func (s *Session) Send(kind domain.EventKind, payload any) {
	s.manager.Send(kind, payload)
}

// SendMessage sends a group message and returns its client message id.
func (s *Session) SendMessage(conversationID, content string) string {
	id := uuid.NewString()
	s.manager.Send(domain.KindGroupMessage, domain.ChatMessagePayload{
		Content:        content,
		ConversationID: conversationID,
		ClientMsgID:    id,
	})
	return id
}

// Flush waits until frames sent so far have been written to the socket.
func (s *Session) Flush(ctx context.Context) error {
	return s.manager.Flush(ctx)
}

// WaitOpen blocks until the connection is open or ctx is done.
func (s *Session) WaitOpen(ctx context.Context) error {
	opened := make(chan struct{}, 1)
	unsubscribe := s.manager.OnStateChange(func(st domain.ConnState) {
		if st == domain.StateOpen {
			select {
			case opened <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()
	if s.manager.State() == domain.StateOpen {
		return nil
	}
	select {
	case <-opened:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for connection: %w", ctx.Err())
	}
}

func (s *Session) Subscribe(kind domain.EventKind, h contracts.Handler) (unsubscribe func()) {
	return s.router.Subscribe(kind, h)
}

func (s *Session) SubscribeAll(h contracts.Handler) (unsubscribe func()) {
	return s.router.SubscribeAll(h)
}

func (s *Session) OnStateChange(fn func(domain.ConnState)) (unsubscribe func()) {
	return s.manager.OnStateChange(fn)
}

func (s *Session) OnCacheChange(fn func(domain.QueryKey)) (unsubscribe func()) {
	return s.store.OnChange(fn)
}

func (s *Session) Store() contracts.Store {
	return s.store
}

func (s *Session) Queries() *services.QueryService {
	return s.queries
}

func (s *Session) API() contracts.ChatAPI {
	return s.api
}

func (s *Session) State() domain.ConnState {
	return s.manager.State()
}

func (s *Session) UserID() string {
	return s.claims.Subject
}
