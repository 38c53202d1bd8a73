package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatsync/internal/config"
	"chatsync/internal/core/contracts"
	"chatsync/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func token(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	}).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return tok
}

// chatServer fakes the REST endpoints and the push socket on one listener.
type chatServer struct {
	*httptest.Server
	push chan string
	recv chan string
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()
	cs := &chatServer{push: make(chan string, 8), recv: make(chan string, 8)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/getConversations", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"A","name":"alpha","last_message":null}]`))
	})
	mux.HandleFunc("/api/getConversationsMessages", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages":[{"id":"m1","conversation_id":"A"}],"has_more":false}`))
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				cs.recv <- string(data)
			}
		}()
		for {
			select {
			case msg := <-cs.push:
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})
	cs.Server = httptest.NewServer(mux)
	t.Cleanup(cs.Close)
	return cs
}

func testConfig(t *testing.T, baseURL, tok string) *config.Config {
	t.Helper()
	v := config.NewViper()
	v.Set("API_URL", baseURL)
	v.Set("SESSION_TOKEN", tok)
	v.Set("WS_PING_INTERVAL", 0)
	return config.LoadFrom(v)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRejectsBadTokens(t *testing.T) {
	_, err := New(discard(), testConfig(t, "http://chat.test", ""), Deps{})
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	expired := token(t, "u1", time.Now().Add(-time.Hour))
	_, err = New(discard(), testConfig(t, "http://chat.test", expired), Deps{})
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestSessionEndToEnd(t *testing.T) {
	cs := newChatServer(t)
	s, err := New(discard(), testConfig(t, cs.URL, token(t, "u1", time.Now().Add(time.Hour))), Deps{})
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID())

	ctx := context.Background()
	require.NoError(t, s.Init(ctx))
	waitCtx, cancel := context.WithTimeout(ctx, waitFor)
	defer cancel()
	require.NoError(t, s.WaitOpen(waitCtx))

	_, err = s.Queries().LoadMessages(ctx, "A", 20)
	require.NoError(t, err)
	_, err = s.Queries().LoadConversations(ctx, 1, 20)
	require.NoError(t, err)

	seen := make(chan domain.EventKind, 4)
	s.Subscribe(domain.KindMessage, func(_ context.Context, ev domain.PushEvent) { seen <- ev.Kind })

	cs.push <- `{"events":[{"type":"message","data":{"id":"m2","conversation_id":"A","text":"hi"}}]}`
	select {
	case <-seen:
	case <-time.After(waitFor):
		t.Fatal("event not routed")
	}

	timeline, ok := s.Store().Get(domain.MessagesKey("A", 20))
	require.True(t, ok)
	var ids []string
	for _, r := range timeline.Records() {
		ids = append(ids, r.ID())
	}
	assert.Equal(t, []string{"m1", "m2"}, ids)
	list, _ := s.Store().Get(domain.ConversationsKey(1, 20))
	assert.Equal(t, domain.StatusStale, list.Status)

	clientMsgID := s.SendMessage("A", "hello")
	select {
	case raw := <-cs.recv:
		var env struct {
			Type string                    `json:"type"`
			Data domain.ChatMessagePayload `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(raw), &env))
		assert.Equal(t, "group_message", env.Type)
		assert.Equal(t, "hello", env.Data.Content)
		assert.Equal(t, clientMsgID, env.Data.ClientMsgID)
	case <-time.After(waitFor):
		t.Fatal("server received nothing")
	}

	require.NoError(t, s.Teardown())
	assert.Equal(t, domain.StateClosed, s.State())

	// sending after teardown is dropped, not an error
	s.Send(domain.KindJoinConversation, domain.ConversationRef{ConversationID: "A"})
	select {
	case raw := <-cs.recv:
		t.Fatalf("unexpected frame after teardown: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

type refusingDialer struct{}

func (refusingDialer) Dial(context.Context, string, http.Header) (contracts.Socket, error) {
	return nil, errors.New("connection refused")
}

type idleTimer struct{}

func (idleTimer) Stop() bool { return true }

// idleClock never fires, so no reconnect happens on its own.
type idleClock struct{}

func (idleClock) AfterFunc(time.Duration, func()) contracts.Timer { return idleTimer{} }

// hangingAPI blocks list fetches until the request context is done.
type hangingAPI struct {
	contracts.ChatAPI
	started  chan struct{}
	returned chan struct{}
}

func (h *hangingAPI) GetConversations(ctx context.Context, _, _ int) ([]domain.Record, error) {
	close(h.started)
	<-ctx.Done()
	defer close(h.returned)
	return nil, ctx.Err()
}

func TestTeardownWaitsForReconnectRefetch(t *testing.T) {
	api := &hangingAPI{started: make(chan struct{}), returned: make(chan struct{})}
	s, err := New(discard(), testConfig(t, "http://chat.test", token(t, "u1", time.Now().Add(time.Hour))), Deps{
		Dialer: refusingDialer{},
		Clock:  idleClock{},
		API:    api,
	})
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))

	key := domain.ConversationsKey(1, 20)
	s.Store().Set(key, domain.CacheEntry{Status: domain.StatusStale})

	s.onStateChange(domain.StateOpen)
	s.onStateChange(domain.StateOpen)
	select {
	case <-api.started:
	case <-time.After(waitFor):
		t.Fatal("reconnect did not refetch stale entries")
	}

	require.NoError(t, s.Teardown())
	select {
	case <-api.returned:
	default:
		t.Fatal("Teardown returned while a refetch was still running")
	}
	e, _ := s.Store().Get(key)
	assert.Equal(t, domain.StatusError, e.Status)
}
