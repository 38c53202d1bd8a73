package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		base string
		path string
		want string
	}{
		{"http://localhost:8080", "/ws", "ws://localhost:8080/ws"},
		{"https://chat.example.com", "/ws", "wss://chat.example.com/ws"},
		{"https://chat.example.com/api/", "ws", "wss://chat.example.com/api/ws"},
		{"wss://chat.example.com", "", "wss://chat.example.com/ws"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := WebSocketURL(tt.base, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWebSocketURLRejectsBadInput(t *testing.T) {
	_, err := WebSocketURL("ftp://example.com", "/ws")
	assert.Error(t, err)
	_, err = WebSocketURL("http://", "/ws")
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, time.Second, cfg.Socket.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.Socket.BackoffMax)
	assert.Equal(t, uint(0), cfg.Socket.MaxReconnectAttempts)
	assert.Equal(t, 20, cfg.API.PageSize)

	u, err := cfg.SocketURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", u)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("API_URL", "https://chat.example.com")
	t.Setenv("WS_BACKOFF_MAX", "10s")
	t.Setenv("WS_MAX_RECONNECT_ATTEMPTS", "7")
	t.Setenv("CACHE_SIZE", "64")

	cfg := Load()
	assert.Equal(t, "https://chat.example.com", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Socket.BackoffMax)
	assert.Equal(t, uint(7), cfg.Socket.MaxReconnectAttempts)
	assert.Equal(t, 64, cfg.Cache.Size)
}
