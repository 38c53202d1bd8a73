package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	Service *ServiceConfig
	API     *APIConfig
	Socket  *SocketConfig
	Cache   *CacheConfig
	Redis   *RedisConfig
	Tracer  *TracerConfig
	Logger  *LoggerConfig
	// SessionToken is the bearer token of the authenticated session.
	SessionToken string
}

type ServiceConfig struct {
	Name string
	Env  string
}

type APIConfig struct {
	BaseURL       string
	Timeout       time.Duration
	PageSize      int
	MessagesLimit int
}

type SocketConfig struct {
	Path                 string
	BackoffBase          time.Duration
	BackoffMax           time.Duration
	MaxReconnectAttempts uint // 0 retries forever
	HandshakeTimeout     time.Duration
	WriteTimeout         time.Duration
	PingInterval         time.Duration
	// PongWait is how long the connection may stay silent while pinging.
	PongWait             time.Duration
	ReadLimit            int64
	SendBuffer           int
	FrameBuffer          int
}

type CacheConfig struct {
	Size int
}

// RedisConfig enables the notification stream when URL is set.
type RedisConfig struct {
	URL          string
	Stream       string
	MaxLen       int64
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	PingTimeout  time.Duration
}

type TracerConfig struct {
	Address string
}

type LoggerConfig struct {
	Level  string
	Format string
}

// SocketURL derives the push endpoint from the API base URL.
func (c *Config) SocketURL() (string, error) {
	return WebSocketURL(c.API.BaseURL, c.Socket.Path)
}

// WebSocketURL rewrites http→ws and https→wss and appends path.
func WebSocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("api url %q has no host", baseURL)
	}
	if path == "" {
		path = "/ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	return u.String(), nil
}
