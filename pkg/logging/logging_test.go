package logging

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" warn "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("INFO"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestFromContextOr(t *testing.T) {
	fallback := slog.Default().With("component", "worker")
	assert.Same(t, fallback, FromContextOr(context.Background(), fallback))

	l := slog.Default().With("conn_id", "c1")
	assert.Same(t, l, FromContextOr(WithContext(context.Background(), l), fallback))
}

func TestFields(t *testing.T) {
	assert.Equal(t, "error", Err(errors.New("x")).Key)
	assert.Equal(t, "", Err(nil).Value.String())
	assert.Equal(t, int64(1500), Backoff(1500*time.Millisecond).Value.Int64())
	assert.Equal(t, uint64(3), Attempt(3).Value.Uint64())
	assert.Equal(t, "trace_id", TraceID("abc").Key)
}
