package contracts

import (
	"context"
	"net/http"
	"time"
)

// Socket is one open push connection. ReadMessage and WriteMessage may be
// called from different goroutines, but each from only one.
type Socket interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Socket, error)
}

type Timer interface {
	Stop() bool
}

// Clock schedules reconnect attempts.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}
