package middleware

import (
	"sync/atomic"
	"time"
)

// RateLimiter is a lock-free token bucket for a single connection.
// It starts full and regains one token per rate, up to burst.
type RateLimiter struct {
	tokens   int32
	rate     time.Duration
	burst    int32
	lastTick int64
	now      func() time.Time
}

func NewRateLimiter(burst int32, rate time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:   burst,
		rate:     rate,
		burst:    burst,
		lastTick: time.Now().UnixNano(),
		now:      time.Now,
	}
}

func (l *RateLimiter) Allow() bool {
	now := l.now().UnixNano()
	last := atomic.LoadInt64(&l.lastTick)

	generated := int32((now - last) / int64(l.rate))
	if generated > 0 {
		// Advance by whole periods so partial progress is not lost.
		next := last + int64(generated)*int64(l.rate)
		if atomic.CompareAndSwapInt64(&l.lastTick, last, next) {
			for {
				current := atomic.LoadInt32(&l.tokens)
				balance := min(current+generated, l.burst)
				if atomic.CompareAndSwapInt32(&l.tokens, current, balance) {
					break
				}
			}
		}
	}

	for {
		current := atomic.LoadInt32(&l.tokens)
		if current <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(&l.tokens, current, current-1) {
			return true
		}
	}
}
