package socket

import (
	"time"

	"chatsync/internal/core/contracts"
)

const (
	DefaultBackoffBase = 1 * time.Second
	DefaultBackoffMax  = 30 * time.Second
)

// Backoff doubles from Base on every consecutive failure, capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before reconnect attempt n (0-based).
func (b Backoff) Delay(attempt uint) time.Duration {
	base, max := b.Base, b.Max
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if max <= 0 {
		max = DefaultBackoffMax
	}
	d := base
	for i := uint(0); i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) contracts.Timer {
	return time.AfterFunc(d, f)
}

// SystemClock schedules on real timers.
func SystemClock() contracts.Clock {
	return systemClock{}
}
