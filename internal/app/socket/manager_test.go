package socket

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"chatsync/internal/config"
	"chatsync/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func newTestManager(t *testing.T, maxAttempts uint) (*Manager, *fakeDialer, *fakeClock) {
	t.Helper()
	dialer := &fakeDialer{}
	clock := &fakeClock{}
	header := http.Header{}
	header.Set("Authorization", "Bearer token")
	m := NewManager(discardLogger(), dialer, clock, Settings{
		URL:         "ws://chat.test/ws",
		Header:      header,
		Backoff:     Backoff{Base: time.Second, Max: 30 * time.Second},
		MaxAttempts: maxAttempts,
	})
	t.Cleanup(m.Disconnect)
	return m, dialer, clock
}

func TestConnectOpens(t *testing.T) {
	m, dialer, _ := newTestManager(t, 0)

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, domain.StateOpen, m.State())
	assert.Equal(t, 1, dialer.dials())
	assert.Equal(t, "Bearer token", dialer.headers[0].Get("Authorization"))
}

func TestConnectIsIdempotentWhileOpen(t *testing.T) {
	m, dialer, _ := newTestManager(t, 0)

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, 1, dialer.dials())
}

func TestBackoffSequenceAfterDrop(t *testing.T) {
	m, dialer, clock := newTestManager(t, 0)
	require.NoError(t, m.Connect(context.Background()))

	dialer.setFail(true)
	dialer.last().Close()
	require.Eventually(t, func() bool { return len(clock.delays()) == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, domain.StateConnecting, m.State())

	for i := 0; i < 5; i++ {
		clock.fireLast()
	}
	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
	}, clock.delays())
	assert.Equal(t, 6, dialer.dials())
}

func TestDialFailureSchedulesReconnect(t *testing.T) {
	m, dialer, clock := newTestManager(t, 0)
	dialer.setFail(true)

	err := m.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.StateConnecting, m.State())
	assert.Equal(t, []time.Duration{time.Second}, clock.delays())

	attempt, delay := m.Reconnect()
	assert.Equal(t, uint(1), attempt)
	assert.Equal(t, time.Second, delay)
}

func TestSuccessfulOpenResetsBackoff(t *testing.T) {
	m, dialer, clock := newTestManager(t, 0)
	dialer.setFail(true)
	_ = m.Connect(context.Background())
	clock.fireLast()
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.delays())

	dialer.setFail(false)
	clock.fireLast()
	require.Equal(t, domain.StateOpen, m.State())
	attempt, delay := m.Reconnect()
	assert.Zero(t, attempt)
	assert.Zero(t, delay)

	dialer.last().Close()
	require.Eventually(t, func() bool { return len(clock.delays()) == 3 }, waitFor, time.Millisecond)
	assert.Equal(t, time.Second, clock.delays()[2])
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	m, dialer, clock := newTestManager(t, 0)
	dialer.setFail(true)
	_ = m.Connect(context.Background())
	require.Equal(t, 1, dialer.dials())

	m.Disconnect()
	assert.True(t, clock.lastTimer().isStopped())
	assert.Equal(t, domain.StateClosed, m.State())

	clock.fireLast()
	assert.Equal(t, 1, dialer.dials())
	assert.Equal(t, domain.StateClosed, m.State())
}

func TestDisconnectDoesNotReconnect(t *testing.T) {
	m, dialer, clock := newTestManager(t, 0)
	require.NoError(t, m.Connect(context.Background()))
	sock := dialer.last()

	m.Disconnect()
	assert.True(t, sock.isClosed())
	assert.Equal(t, domain.StateClosed, m.State())

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, clock.delays())
	assert.Equal(t, 1, dialer.dials())
}

func TestConnectDuringBackoffDialsNow(t *testing.T) {
	m, dialer, clock := newTestManager(t, 0)
	dialer.setFail(true)
	_ = m.Connect(context.Background())
	pending := clock.lastTimer()

	dialer.setFail(false)
	require.NoError(t, m.Connect(context.Background()))
	assert.True(t, pending.isStopped())
	assert.Equal(t, domain.StateOpen, m.State())

	// stale timer callback must not dial again
	pending.f()
	assert.Equal(t, 2, dialer.dials())
}

func TestMaxAttemptsExhausted(t *testing.T) {
	m, dialer, clock := newTestManager(t, 2)
	dialer.setFail(true)

	_ = m.Connect(context.Background())
	clock.fireLast()
	clock.fireLast()

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.delays())
	assert.Equal(t, 3, dialer.dials())
	assert.Equal(t, domain.StateClosed, m.State())
}

func TestSendWhileClosedIsDropped(t *testing.T) {
	m, dialer, _ := newTestManager(t, 0)

	assert.NotPanics(t, func() {
		m.Send(domain.KindGroupMessage, domain.ChatMessagePayload{Content: "hi", ConversationID: "A"})
	})
	assert.Zero(t, dialer.dials())
}

func TestSendWritesEnvelope(t *testing.T) {
	m, dialer, _ := newTestManager(t, 0)
	require.NoError(t, m.Connect(context.Background()))

	m.Send(domain.KindJoinConversation, domain.ConversationRef{ConversationID: "A"})
	sock := dialer.last()
	require.Eventually(t, func() bool { return len(sock.writes()) == 1 }, waitFor, time.Millisecond)
	assert.JSONEq(t, `{"type":"join_conversation","data":{"conversation_id":"A"}}`, sock.writes()[0])
}

func TestFramesCarryConnectionContext(t *testing.T) {
	m, dialer, _ := newTestManager(t, 0)
	require.NoError(t, m.Connect(context.Background()))

	dialer.last().in <- []byte(`{"type":"message","data":{"id":"m1"}}`)
	var frame domain.InboundFrame
	select {
	case frame = <-m.Frames():
	case <-time.After(waitFor):
		t.Fatal("no frame delivered")
	}
	assert.NotEmpty(t, frame.ConnID)
	assert.NoError(t, frame.Ctx.Err())

	m.Disconnect()
	assert.Error(t, frame.Ctx.Err())
}

func TestOnStateChange(t *testing.T) {
	m, _, _ := newTestManager(t, 0)
	var mu sync.Mutex
	var states []domain.ConnState
	unsubscribe := m.OnStateChange(func(s domain.ConnState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	require.NoError(t, m.Connect(context.Background()))
	m.Disconnect()
	unsubscribe()
	require.NoError(t, m.Connect(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.ConnState{domain.StateConnecting, domain.StateOpen, domain.StateClosed}, states)
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := &config.Config{
		API:          &config.APIConfig{BaseURL: "https://chat.example.com/api"},
		Socket:       &config.SocketConfig{BackoffBase: time.Second, BackoffMax: 30 * time.Second, MaxReconnectAttempts: 5},
		SessionToken: "abc",
	}
	s, err := SettingsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/api/ws", s.URL)
	assert.Equal(t, "Bearer abc", s.Header.Get("Authorization"))
	assert.Equal(t, uint(5), s.MaxAttempts)
}

func TestFlushWaitsForQueuedFrames(t *testing.T) {
	m, dialer, _ := newTestManager(t, 0)
	assert.ErrorIs(t, m.Flush(context.Background()), domain.ErrNotOpen)

	require.NoError(t, m.Connect(context.Background()))
	for i := 0; i < 5; i++ {
		m.Send(domain.KindGroupMessage, domain.ChatMessagePayload{Content: "x", ConversationID: "A"})
	}
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, m.Flush(ctx))
	assert.Len(t, dialer.last().writes(), 5)
}
