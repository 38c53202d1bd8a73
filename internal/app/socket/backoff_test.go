package socket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 30 * time.Second}
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for attempt, d := range want {
		assert.Equal(t, d, b.Delay(uint(attempt)), "attempt %d", attempt)
	}
	assert.Equal(t, 30*time.Second, b.Delay(1000))
}

func TestBackoffDefaults(t *testing.T) {
	var b Backoff
	assert.Equal(t, DefaultBackoffBase, b.Delay(0))
	assert.Equal(t, DefaultBackoffMax, b.Delay(10))
}

func TestBackoffCustom(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: 250 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, b.Delay(0))
	assert.Equal(t, 200*time.Millisecond, b.Delay(1))
	assert.Equal(t, 250*time.Millisecond, b.Delay(2))
}
