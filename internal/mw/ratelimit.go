package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"postpartum-htn-backend/internal/metrics"
)

// idleLimiter is how long a caller's bucket survives without requests.
const idleLimiter = 10 * time.Minute

// CallerRateLimiter hands out one token bucket per caller. Authenticated callers are
// keyed by user id so a shared workstation does not throttle the whole ward; anonymous
// requests fall back to the client IP.
type CallerRateLimiter struct {
	limiters *cache.Cache
	mu       sync.Mutex
	r        rate.Limit
	b        int
}

// NewCallerRateLimiter creates a limiter allowing r requests per second with burst b.
func NewCallerRateLimiter(r rate.Limit, b int) *CallerRateLimiter {
	return &CallerRateLimiter{
		limiters: cache.New(idleLimiter, 2*idleLimiter),
		r:        r,
		b:        b,
	}
}

// Limiter returns the bucket for key, creating it on first use. Each lookup extends
// the bucket's lifetime.
func (l *CallerRateLimiter) Limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.limiters.Get(key); ok {
		l.limiters.Set(key, v, cache.DefaultExpiration)
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(l.r, l.b)
	l.limiters.Set(key, limiter, cache.DefaultExpiration)
	return limiter
}

// Callers returns the number of live buckets.
func (l *CallerRateLimiter) Callers() int {
	return l.limiters.ItemCount()
}

func callerKey(c *gin.Context) (kind, key string) {
	if id, ok := IdentityFrom(c); ok {
		return "user", "user:" + id.UserID
	}
	return "ip", "ip:" + c.ClientIP()
}

// RateLimiter throttles API requests per caller. It must run after Auth.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiter := NewCallerRateLimiter(r, b)
	return func(c *gin.Context) {
		kind, key := callerKey(c)
		if !limiter.Limiter(key).Allow() {
			metrics.RecordThrottled(kind)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":     "too many requests",
				"code":      "RATE_LIMITED",
				"retryable": true,
			})
			return
		}
		c.Next()
	}
}
