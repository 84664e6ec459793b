package toolgateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_AllowsUpToCapBurst(t *testing.T) {
	rl := NewRateLimiter(3)
	assert.True(t, rl.Allow("call-1"))
	assert.True(t, rl.Allow("call-1"))
	assert.True(t, rl.Allow("call-1"))
	assert.False(t, rl.Allow("call-1"))
}

func TestRateLimiter_PerCallIsolation(t *testing.T) {
	rl := NewRateLimiter(1)
	assert.True(t, rl.Allow("call-a"))
	assert.False(t, rl.Allow("call-a"))
	assert.True(t, rl.Allow("call-b"))
}

func TestRateLimiter_Forget(t *testing.T) {
	rl := NewRateLimiter(1)
	assert.True(t, rl.Allow("call-c"))
	assert.False(t, rl.Allow("call-c"))
	rl.Forget("call-c")
	assert.True(t, rl.Allow("call-c"))
}
