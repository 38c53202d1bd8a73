package socket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chatsync/internal/core/contracts"
	"chatsync/internal/core/domain"
	"chatsync/pkg/logging"

	"github.com/google/uuid"
)

type pinger interface {
	Ping() error
}

// outbound is a queued frame, or a flush barrier when done is set.
type outbound struct {
	data []byte
	done chan struct{}
}

// connection is one socket plus its read and write loops.
type connection struct {
	id       string
	ctx      context.Context
	cancel   context.CancelFunc
	sock     contracts.Socket
	out      chan outbound
	ping     time.Duration
	log      *slog.Logger
	onDrop   func(*connection, error)
	once     sync.Once
	dropOnce sync.Once
}

func newConnection(
	parent context.Context,
	log *slog.Logger,
	sock contracts.Socket,
	sendBuffer int,
	ping time.Duration,
) *connection {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	id := uuid.NewString()
	log = log.With(logging.ConnID(id))
	ctx, cancel := context.WithCancel(logging.WithContext(parent, log))
	return &connection{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		sock:   sock,
		out:    make(chan outbound, sendBuffer),
		ping:   ping,
		log:    log,
	}
}

func (c *connection) start(frames chan<- domain.InboundFrame, onDrop func(*connection, error)) {
	c.onDrop = onDrop
	go c.writeLoop()
	go c.readLoop(frames)
}

// send never blocks: a full buffer drops the frame.
func (c *connection) send(data []byte) error {
	if c.ctx.Err() != nil {
		return domain.ErrNotOpen
	}
	select {
	case c.out <- outbound{data: data}:
		return nil
	case <-c.ctx.Done():
		return domain.ErrNotOpen
	default:
		return domain.ErrSendBufferFull
	}
}

// flush waits until every frame queued before the call has been written.
func (c *connection) flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case c.out <- outbound{done: done}:
	case <-c.ctx.Done():
		return domain.ErrNotOpen
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-c.ctx.Done():
		return domain.ErrNotOpen
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		c.cancel()
		_ = c.sock.Close()
	})
}

func (c *connection) drop(err error) {
	c.dropOnce.Do(func() {
		c.close()
		if c.onDrop != nil {
			c.onDrop(c, err)
		}
	})
}

func (c *connection) writeLoop() {
	var tick <-chan time.Time
	p, canPing := c.sock.(pinger)
	if canPing && c.ping > 0 {
		t := time.NewTicker(c.ping)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-c.ctx.Done():
			return
		case o := <-c.out:
			if o.done != nil {
				close(o.done)
				continue
			}
			if err := c.sock.WriteMessage(o.data); err != nil {
				c.log.Warn("socket - write loop - write failed", logging.Err(err))
				c.drop(err)
				return
			}
		case <-tick:
			if err := p.Ping(); err != nil {
				c.log.Warn("socket - write loop - ping failed", logging.Err(err))
				c.drop(err)
				return
			}
		}
	}
}

func (c *connection) readLoop(frames chan<- domain.InboundFrame) {
	for {
		data, err := c.sock.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil && IsUnexpectedClose(err) {
				c.log.Warn("socket - read loop - unexpected close", logging.Err(err))
			}
			c.drop(err)
			return
		}
		if len(data) == 0 {
			continue
		}
		select {
		case frames <- domain.InboundFrame{Ctx: c.ctx, ConnID: c.id, Data: data}:
		case <-c.ctx.Done():
			return
		}
	}
}
