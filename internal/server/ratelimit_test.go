package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_LocalWindow(t *testing.T) {
	rl := NewRateLimiter("", nil, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _ := rl.Allow(ctx, "login:1.2.3.4", 3, time.Minute)
		assert.True(t, ok, "hit %d should pass", i+1)
	}

	ok, retry := rl.Allow(ctx, "login:1.2.3.4", 3, time.Minute)
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))

	// Other keys keep their own window
	ok, _ = rl.Allow(ctx, "login:5.6.7.8", 3, time.Minute)
	assert.True(t, ok)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl := NewRateLimiter("", nil, zerolog.Nop())
	ctx := context.Background()

	ok, _ := rl.Allow(ctx, "chat:c1", 1, 20*time.Millisecond)
	assert.True(t, ok)
	ok, _ = rl.Allow(ctx, "chat:c1", 1, 20*time.Millisecond)
	assert.False(t, ok)

	time.Sleep(30 * time.Millisecond)
	ok, _ = rl.Allow(ctx, "chat:c1", 1, 20*time.Millisecond)
	assert.True(t, ok)
}

func TestRateLimiter_ZeroLimitDisables(t *testing.T) {
	rl := NewRateLimiter("", nil, zerolog.Nop())
	for i := 0; i < 100; i++ {
		ok, _ := rl.Allow(context.Background(), "anything", 0, time.Minute)
		assert.True(t, ok)
	}
}

func TestClientIP(t *testing.T) {
	r := &http.Request{RemoteAddr: "10.0.0.9:51234"}
	assert.Equal(t, "10.0.0.9", clientIP(r))

	r = &http.Request{RemoteAddr: "10.0.0.9"}
	assert.Equal(t, "10.0.0.9", clientIP(r))
}
