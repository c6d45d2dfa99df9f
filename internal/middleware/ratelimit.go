package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/certeva/certexam-backend/internal/response"
)

// staleAfter is how long an idle client entry survives before the
// background sweep removes it.
const staleAfter = 3 * time.Minute

// RateLimiter throttles requests per client IP with a refilling token
// bucket. It guards the credential endpoints against brute-force login
// attempts; authenticated traffic is not limited here.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity int
	interval time.Duration
}

type bucket struct {
	tokens   int
	refilled time.Time
}

// NewRateLimiter allows capacity requests per interval for each client IP
// and starts a sweeper goroutine that evicts idle buckets.
func NewRateLimiter(capacity int, interval time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets:  make(map[string]*bucket),
		capacity: capacity,
		interval: interval,
	}

	go rl.sweep()

	return rl
}

// Middleware rejects requests with 429 once a client's bucket is empty.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{tokens: rl.capacity, refilled: time.Now()}
		rl.buckets[ip] = b
	}

	if intervals := int(time.Since(b.refilled) / rl.interval); intervals > 0 {
		b.tokens += intervals * rl.capacity
		if b.tokens > rl.capacity {
			b.tokens = rl.capacity
		}
		b.refilled = time.Now()
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		for ip, b := range rl.buckets {
			if time.Since(b.refilled) > staleAfter {
				delete(rl.buckets, ip)
			}
		}
		rl.mu.Unlock()
	}
}
