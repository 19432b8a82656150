// internal/handlers/ratelimit_test.go
package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterWindow(t *testing.T) {
	var rl rateLimiter
	now := int64(5_000)

	for i := 0; i < inputRateLimit; i++ {
		assert.True(t, rl.Allow(now+int64(i)), "input %d should pass", i)
	}
	assert.False(t, rl.Allow(now+100))
	assert.False(t, rl.Allow(now+999), "still inside the window")

	// A full second later the window rolls over.
	assert.True(t, rl.Allow(now+1_000))
	assert.Equal(t, 1, rl.count)
}

func TestRateLimiterSparseTraffic(t *testing.T) {
	var rl rateLimiter
	// One input every two seconds never trips the limit.
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow(int64(i)*2_000))
	}
}
