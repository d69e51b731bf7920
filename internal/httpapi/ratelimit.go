package httpapi

import (
	"net/http"
	"sync"
	"time"

	"appeals-platform/internal/problem"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ipLimiter hands out one token-bucket limiter per client IP. Stale buckets
// are pruned lazily so the map does not grow with one-off clients.
type ipLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	perMin  int
	maxIdle time.Duration
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newIPLimiter(perMinute int) *ipLimiter {
	return &ipLimiter{
		buckets: make(map[string]*bucket),
		perMin:  perMinute,
		maxIdle: 10 * time.Minute,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(float64(l.perMin)/60.0), l.perMin)}
		l.buckets[ip] = b
	}
	b.seen = now

	if len(l.buckets) > 1024 {
		for key, old := range l.buckets {
			if now.Sub(old.seen) > l.maxIdle {
				delete(l.buckets, key)
			}
		}
	}
	return b.lim.Allow()
}

// LoginRateLimit throttles credential endpoints per client IP.
func LoginRateLimit(perMinute int) gin.HandlerFunc {
	l := newIPLimiter(perMinute)
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.Header("Retry-After", "60")
			problem.Abort(c, http.StatusTooManyRequests, problem.CodeRateLimited,
				"too many attempts from this address; retry in a minute")
			return
		}
		c.Next()
	}
}
