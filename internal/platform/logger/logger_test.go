package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"chatsync/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(format, level string) config.Config {
	return config.Config{
		Service: &config.ServiceConfig{Name: "chatsync", Env: "test"},
		Logger:  &config.LoggerConfig{Level: level, Format: format},
	}
}

func TestJSONLoggerCarriesServiceAttrs(t *testing.T) {
	defer slog.SetDefault(slog.Default())
	var buf bytes.Buffer
	log := New(&buf, testConfig("json", "info"))
	log.Info("socket - connect - open")
	log.Debug("hidden")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "chatsync", line["service"])
	assert.Equal(t, "test", line["env"])
	assert.Equal(t, "socket - connect - open", line["msg"])
}

func TestTextLoggerHonoursLevel(t *testing.T) {
	defer slog.SetDefault(slog.Default())
	var buf bytes.Buffer
	log := New(&buf, testConfig("TEXT", "debug"))
	log.Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")
}
