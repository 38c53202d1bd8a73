package config

import (
	"time"

	"github.com/spf13/viper"
)

// NewViper returns a viper instance reading the environment, with defaults set.
// Callers may bind command-line flags on it before calling LoadFrom.
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func Load() *Config {
	return LoadFrom(NewViper())
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"SERVICE_NAME":              "chatsync",
		"SERVICE_ENV":               "development",
		"API_URL":                   "http://localhost:8080",
		"API_TIMEOUT":               10 * time.Second,
		"API_PAGE_SIZE":             20,
		"MESSAGES_LIMIT":            20,
		"WS_PATH":                   "/ws",
		"WS_BACKOFF_BASE":           1 * time.Second,
		"WS_BACKOFF_MAX":            30 * time.Second,
		"WS_MAX_RECONNECT_ATTEMPTS": 0,
		"WS_HANDSHAKE_TIMEOUT":      10 * time.Second,
		"WS_WRITE_TIMEOUT":          10 * time.Second,
		"WS_PING_INTERVAL":          30 * time.Second,
		"WS_PONG_WAIT":              60 * time.Second,
		"WS_READ_LIMIT":             512 * 1024,
		"WS_SEND_BUFFER":            256,
		"WS_FRAME_BUFFER":           64,
		"CACHE_SIZE":                512,
		"REDIS_URL":                 "",
		"REDIS_STREAM":              "notifications",
		"REDIS_STREAM_MAXLEN":       1000,
		"REDIS_DIAL_TIMEOUT":        5 * time.Second,
		"REDIS_READ_TIMEOUT":        3 * time.Second,
		"REDIS_WRITE_TIMEOUT":       3 * time.Second,
		"REDIS_POOL_SIZE":           4,
		"REDIS_PING_TIMEOUT":        2 * time.Second,
		"OTEL_ENDPOINT":             "",
		"LOG_LEVEL":                 "info",
		"LOG_FORMAT":                "JSON",
		"SESSION_TOKEN":             "",
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

func LoadFrom(v *viper.Viper) *Config {
	return &Config{
		Service: &ServiceConfig{
			Name: v.GetString("SERVICE_NAME"),
			Env:  v.GetString("SERVICE_ENV"),
		},
		API: &APIConfig{
			BaseURL:       v.GetString("API_URL"),
			Timeout:       v.GetDuration("API_TIMEOUT"),
			PageSize:      v.GetInt("API_PAGE_SIZE"),
			MessagesLimit: v.GetInt("MESSAGES_LIMIT"),
		},
		Socket: &SocketConfig{
			Path:                 v.GetString("WS_PATH"),
			BackoffBase:          v.GetDuration("WS_BACKOFF_BASE"),
			BackoffMax:           v.GetDuration("WS_BACKOFF_MAX"),
			MaxReconnectAttempts: v.GetUint("WS_MAX_RECONNECT_ATTEMPTS"),
			HandshakeTimeout:     v.GetDuration("WS_HANDSHAKE_TIMEOUT"),
			WriteTimeout:         v.GetDuration("WS_WRITE_TIMEOUT"),
			PingInterval:         v.GetDuration("WS_PING_INTERVAL"),
			PongWait:             v.GetDuration("WS_PONG_WAIT"),
			ReadLimit:            v.GetInt64("WS_READ_LIMIT"),
			SendBuffer:           v.GetInt("WS_SEND_BUFFER"),
			FrameBuffer:          v.GetInt("WS_FRAME_BUFFER"),
		},
		Cache: &CacheConfig{
			Size: v.GetInt("CACHE_SIZE"),
		},
		Redis: &RedisConfig{
			URL:          v.GetString("REDIS_URL"),
			Stream:       v.GetString("REDIS_STREAM"),
			MaxLen:       v.GetInt64("REDIS_STREAM_MAXLEN"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			PingTimeout:  v.GetDuration("REDIS_PING_TIMEOUT"),
		},
		Tracer: &TracerConfig{
			Address: v.GetString("OTEL_ENDPOINT"),
		},
		Logger: &LoggerConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		SessionToken: v.GetString("SESSION_TOKEN"),
	}
}
