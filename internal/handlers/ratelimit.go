// internal/handlers/ratelimit.go
package handlers

// inputRateLimit caps match:input messages per connection per second.
const inputRateLimit = 30

// rateLimiter is a fixed one-second window counter. Not safe for concurrent
// use on its own; the gateway mutex guards it.
type rateLimiter struct {
	windowStartMs int64
	count         int
}

// Allow consumes one slot in the current window, rolling the window over
// when a full second has elapsed.
func (rl *rateLimiter) Allow(nowMs int64) bool {
	if nowMs-rl.windowStartMs >= 1000 {
		rl.windowStartMs = nowMs
		rl.count = 0
	}
	if rl.count >= inputRateLimit {
		return false
	}
	rl.count++
	return true
}
