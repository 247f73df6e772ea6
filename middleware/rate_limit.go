package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/higpup01-design/proofok/pkg/logger"
)

type clientWindow struct {
	start time.Time
	count int
}

// RateLimiter is a fixed-window counter per client IP
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
	rate    int           // requests per window
	window  time.Duration // time window
	sweep   time.Time
	now     func() time.Time
}

// NewRateLimiter creates a new rate limiter. A non-positive rate disables limiting.
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientWindow),
		rate:    rate,
		window:  window,
		now:     time.Now,
	}
}

// Allow counts one request from key and reports whether it is within the limit
func (l *RateLimiter) Allow(key string) bool {
	if l.rate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.sweep) > l.window {
		for k, w := range l.clients {
			if now.Sub(w.start) > l.window {
				delete(l.clients, k)
			}
		}
		l.sweep = now
	}

	w, ok := l.clients[key]
	if !ok || now.Sub(w.start) > l.window {
		w = &clientWindow{start: now}
		l.clients[key] = w
	}
	if w.count >= l.rate {
		return false
	}
	w.count++
	return true
}

// RateLimit rejects requests from a client IP once the limiter says no
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if !limiter.Allow(clientIP) {
			logger.Warn(c.Request.Context(), "rate limit exceeded",
				"client_ip", clientIP,
				"path", c.Request.URL.Path,
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}

		c.Next()
	}
}
