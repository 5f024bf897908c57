package middleware

import (
	"net/http"
	"sync"

	"github.com/collabdocs/collabdocs/backend/go-services/pkg/metrics"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterStore holds one token bucket per key.
type limiterStore struct {
	m     sync.Map // map[string]*rate.Limiter
	rps   rate.Limit
	burst int
}

func (s *limiterStore) get(key string) *rate.Limiter {
	if v, ok := s.m.Load(key); ok {
		return v.(*rate.Limiter)
	}
	v, _ := s.m.LoadOrStore(key, rate.NewLimiter(s.rps, s.burst))
	return v.(*rate.Limiter)
}

// limitKey prefers the authenticated identity over the client IP, so users
// behind one NAT do not share a bucket.
func limitKey(c *gin.Context) string {
	if id := Identity(c); id != "" {
		return "user:" + id
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

func rejectRateLimited(c *gin.Context, retryAfter string) {
	c.Header("Retry-After", retryAfter)
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "message": "Too many requests, please try again later."})
}

// RateLimitMiddleware enforces a token bucket per key.
// rps = allowed events per second, burst = maximum tokens in bucket.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	store := &limiterStore{rps: rate.Limit(rps), burst: burst}
	return func(c *gin.Context) {
		if !store.get(limitKey(c)).Allow() {
			metrics.RateLimitRejected.WithLabelValues("memory").Inc()
			rejectRateLimited(c, "1")
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}
