package socket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"chatsync/internal/config"
	"chatsync/internal/core/contracts"
	"chatsync/internal/core/domain"
	"chatsync/pkg/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("socket-manager")

type Settings struct {
	URL          string
	Header       http.Header
	Backoff      Backoff
	MaxAttempts  uint // 0 retries forever
	PingInterval time.Duration
	SendBuffer   int
	FrameBuffer  int
}

func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	u, err := cfg.SocketURL()
	if err != nil {
		return Settings{}, err
	}
	header := http.Header{}
	if cfg.SessionToken != "" {
		header.Set("Authorization", "Bearer "+cfg.SessionToken)
	}
	return Settings{
		URL:          u,
		Header:       header,
		Backoff:      Backoff{Base: cfg.Socket.BackoffBase, Max: cfg.Socket.BackoffMax},
		MaxAttempts:  cfg.Socket.MaxReconnectAttempts,
		PingInterval: cfg.Socket.PingInterval,
		SendBuffer:   cfg.Socket.SendBuffer,
		FrameBuffer:  cfg.Socket.FrameBuffer,
	}, nil
}

// Manager owns the single push connection: it dials, reconnects with
// exponential backoff after unexpected closes, and hands inbound frames to
// one consumer through Frames.
type Manager struct {
	log      *slog.Logger
	dialer   contracts.Dialer
	clock    contracts.Clock
	settings Settings
	base     context.Context
	frames   chan domain.InboundFrame

	mu         sync.Mutex
	state      domain.ConnState
	manual     bool
	dialing    bool
	dialSeq    uint64
	dialCancel context.CancelFunc
	attempt    uint
	delay      time.Duration
	conn       *connection
	timer      contracts.Timer
	timerSeq   uint64

	lmu       sync.Mutex
	listeners map[int]func(domain.ConnState)
	nextID    int
}

func NewManager(
	log *slog.Logger,
	dialer contracts.Dialer,
	clock contracts.Clock,
	settings Settings,
) *Manager {
	if clock == nil {
		clock = SystemClock()
	}
	if settings.FrameBuffer <= 0 {
		settings.FrameBuffer = 64
	}
	return &Manager{
		log:       log,
		dialer:    dialer,
		clock:     clock,
		settings:  settings,
		base:      context.Background(),
		frames:    make(chan domain.InboundFrame, settings.FrameBuffer),
		state:     domain.StateClosed,
		listeners: make(map[int]func(domain.ConnState)),
	}
}

// Frames delivers inbound frames in arrival order. It is never closed.
func (m *Manager) Frames() <-chan domain.InboundFrame {
	return m.frames
}

func (m *Manager) State() domain.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reconnect reports the pending attempt number and its delay.
func (m *Manager) Reconnect() (attempt uint, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt, m.delay
}

// OnStateChange registers a connectivity listener.
func (m *Manager) OnStateChange(fn func(domain.ConnState)) (unsubscribe func()) {
	m.lmu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.lmu.Unlock()
	return func() {
		m.lmu.Lock()
		delete(m.listeners, id)
		m.lmu.Unlock()
	}
}

func (m *Manager) emit(prev, next domain.ConnState) {
	if prev == next {
		return
	}
	m.log.Info("socket - state - changed", "from", prev.String(), logging.State(next.String()))
	m.lmu.Lock()
	fns := make([]func(domain.ConnState), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.lmu.Unlock()
	for _, fn := range fns {
		fn(next)
	}
}

// Connect opens the connection. It is a no-op while open or dialing; a
// pending backoff timer is cancelled and the dial happens now. A failed dial
// schedules a reconnect and its error is returned for information only.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == domain.StateOpen || m.dialing {
		m.mu.Unlock()
		return nil
	}
	m.manual = false
	m.stopTimerLocked()
	prev := m.state
	m.state = domain.StateConnecting
	m.dialing = true
	m.dialSeq++
	seq := m.dialSeq
	m.mu.Unlock()
	m.emit(prev, domain.StateConnecting)
	return m.dial(ctx, seq)
}

// Disconnect closes the connection for good: no reconnect is scheduled, a
// pending one is cancelled and frames already queued are abandoned.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.manual = true
	m.stopTimerLocked()
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	m.dialing = false
	m.dialSeq++
	conn := m.conn
	m.conn = nil
	prev := m.state
	m.state = domain.StateClosed
	m.attempt, m.delay = 0, 0
	m.mu.Unlock()
	if conn != nil {
		conn.close()
	}
	m.emit(prev, domain.StateClosed)
}

// Send writes {type, data}. Outbound frames are fire-and-forget: when the
// connection is not open the frame is dropped and a warning logged.
func (m *Manager) Send(kind domain.EventKind, payload any) {
	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()
	if conn == nil || state != domain.StateOpen {
		m.log.Warn("socket - send - connection not open", logging.Kind(string(kind)), logging.State(state.String()))
		return
	}
	data, err := json.Marshal(domain.Envelope{Type: kind, Data: payload})
	if err != nil {
		m.log.Error("socket - send - encode failed", logging.Kind(string(kind)), logging.Err(err))
		return
	}
	if err := conn.send(data); err != nil {
		m.log.Warn("socket - send - frame dropped", logging.Kind(string(kind)), logging.ConnID(conn.id), logging.Err(err))
	}
}

// Flush blocks until frames handed to Send so far are on the wire.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return domain.ErrNotOpen
	}
	return conn.flush(ctx)
}

func (m *Manager) stopTimerLocked() {
	m.timerSeq++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) dial(parent context.Context, seq uint64) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	m.mu.Lock()
	if seq != m.dialSeq {
		m.mu.Unlock()
		return nil
	}
	m.dialCancel = cancel
	attempt := m.attempt
	m.mu.Unlock()

	ctx, span := tracer.Start(ctx, "Manager.Dial", trace.WithAttributes(
		attribute.String("ws.url", m.settings.URL),
		attribute.Int64("ws.reconnect_attempt", int64(attempt)),
	))
	defer span.End()

	sock, err := m.dialer.Dial(ctx, m.settings.URL, m.settings.Header.Clone())

	m.mu.Lock()
	if m.manual || seq != m.dialSeq {
		// superseded by Disconnect
		m.mu.Unlock()
		if sock != nil {
			_ = sock.Close()
		}
		span.SetStatus(codes.Error, "disconnected while dialing")
		return nil
	}
	m.dialing = false
	m.dialCancel = nil
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		prev := m.state
		m.scheduleLocked()
		next, n, d := m.state, m.attempt, m.delay
		m.mu.Unlock()
		m.log.Warn("socket - connect - dial failed", logging.Err(err), logging.Attempt(n), logging.Backoff(d))
		m.emit(prev, next)
		return err
	}
	conn := newConnection(m.base, m.log, sock, m.settings.SendBuffer, m.settings.PingInterval)
	m.conn = conn
	m.attempt, m.delay = 0, 0
	prev := m.state
	m.state = domain.StateOpen
	m.mu.Unlock()

	span.SetAttributes(attribute.String("ws.conn_id", conn.id))
	span.SetStatus(codes.Ok, "open")
	m.log.Info("socket - connect - open", logging.ConnID(conn.id))
	conn.start(m.frames, m.onDrop)
	m.emit(prev, domain.StateOpen)
	return nil
}

func (m *Manager) onDrop(conn *connection, err error) {
	m.mu.Lock()
	if m.conn != conn || m.manual {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	prev := m.state
	m.scheduleLocked()
	next, n, d := m.state, m.attempt, m.delay
	m.mu.Unlock()
	m.log.Warn("socket - read loop - connection lost", logging.ConnID(conn.id), logging.Err(err), logging.Attempt(n), logging.Backoff(d))
	m.emit(prev, next)
}

// scheduleLocked arms the reconnect timer, or gives up once the attempt
// budget is spent.
func (m *Manager) scheduleLocked() {
	if m.settings.MaxAttempts > 0 && m.attempt >= m.settings.MaxAttempts {
		m.state = domain.StateClosed
		m.log.Error("socket - reconnect - giving up", logging.Err(domain.ErrReconnectExhausted), logging.Attempt(m.attempt))
		return
	}
	delay := m.settings.Backoff.Delay(m.attempt)
	m.attempt++
	m.delay = delay
	m.state = domain.StateConnecting
	m.timerSeq++
	seq := m.timerSeq
	m.timer = m.clock.AfterFunc(delay, func() { m.reconnect(seq) })
}

func (m *Manager) reconnect(seq uint64) {
	m.mu.Lock()
	if m.manual || seq != m.timerSeq || m.dialing || m.state == domain.StateOpen {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.dialing = true
	m.dialSeq++
	seq = m.dialSeq
	m.mu.Unlock()
	_ = m.dial(m.base, seq)
}
