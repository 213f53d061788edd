package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowConsumesTokens(t *testing.T) {
	l := New(time.Minute)

	for i := range 5 {
		assert.True(t, l.Allow("key-1", 5), "request %d should pass", i)
	}
	assert.False(t, l.Allow("key-1", 5))
}

func TestAllowRefillsOverTime(t *testing.T) {
	l := New(100 * time.Millisecond)

	for range 5 {
		l.Allow("key-1", 5)
	}
	assert.False(t, l.Allow("key-1", 5))

	// A full window restores the whole bucket.
	time.Sleep(120 * time.Millisecond)
	assert.True(t, l.Allow("key-1", 5))
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l := New(time.Minute)

	for range 3 {
		l.Allow("key-a", 3)
	}
	assert.False(t, l.Allow("key-a", 3))
	assert.True(t, l.Allow("key-b", 3))
}

func TestReset(t *testing.T) {
	l := New(time.Minute)

	for range 2 {
		l.Allow("key-1", 2)
	}
	assert.False(t, l.Allow("key-1", 2))

	l.Reset("key-1")
	assert.True(t, l.Allow("key-1", 2))
}

func TestWindow(t *testing.T) {
	l := New(30 * time.Second)
	assert.Equal(t, 30*time.Second, l.Window())
}
