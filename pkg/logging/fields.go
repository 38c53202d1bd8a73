package logging

import (
	"log/slog"
	"time"
)

// Domain identifiers

func Conversation(id string) slog.Attr {
	return slog.String("conversation_id", id)
}

func Kind(kind string) slog.Attr {
	return slog.String("event_kind", kind)
}

func Key(key string) slog.Attr {
	return slog.String("query_key", key)
}

func Record(id string) slog.Attr {
	return slog.String("record_id", id)
}

// Connection

func ConnID(id string) slog.Attr {
	return slog.String("conn_id", id)
}

func State(state string) slog.Attr {
	return slog.String("conn_state", state)
}

func Attempt(n uint) slog.Attr {
	return slog.Uint64("reconnect_attempt", uint64(n))
}

func Backoff(d time.Duration) slog.Attr {
	return slog.Int64("backoff_ms", d.Milliseconds())
}

// Request / tracing

func TraceID(id string) slog.Attr {
	return slog.String("trace_id", id)
}

// Error handling

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
