package middleware

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(burst int32, rate time.Duration) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewRateLimiter(burst, rate)
	l.now = clock.Now
	l.lastTick = clock.Now().UnixNano()
	return l, clock
}

func Test_Limiter_Allows_Burst_Then_Blocks(t *testing.T) {
	req := require.New(t)
	l, _ := newTestLimiter(5, 500*time.Millisecond)

	for range 5 {
		req.True(l.Allow())
	}
	req.False(l.Allow())
}

func Test_Limiter_Refills_At_Sub_Second_Rate(t *testing.T) {
	req := require.New(t)
	l, clock := newTestLimiter(2, 500*time.Millisecond)
	req.True(l.Allow())
	req.True(l.Allow())
	req.False(l.Allow())

	// When half a second passes one token comes back
	clock.Advance(500 * time.Millisecond)
	req.True(l.Allow())
	req.False(l.Allow())

	// And a long pause never overfills the bucket
	clock.Advance(time.Hour)
	req.True(l.Allow())
	req.True(l.Allow())
	req.False(l.Allow())
}

func Test_Limiter_Keeps_Partial_Progress(t *testing.T) {
	req := require.New(t)
	l, clock := newTestLimiter(1, 500*time.Millisecond)
	req.True(l.Allow())

	clock.Advance(300 * time.Millisecond)
	req.False(l.Allow())
	clock.Advance(300 * time.Millisecond)
	req.True(l.Allow())
}

func Test_Limiter_Concurrent_Callers_Never_Exceed_Burst(t *testing.T) {
	req := require.New(t)
	l, _ := newTestLimiter(10, time.Hour)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow() {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	req.Equal(int32(10), allowed.Load())
}
