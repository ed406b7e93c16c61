package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"incidentdb/internal/config"
	"incidentdb/pkg/metrics"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Store keeps one token bucket per client address.
type Store struct {
	mu      sync.Mutex
	clients map[string]*client
	rps     float64
	burst   int
	maxAge  time.Duration
	now     func() time.Time
}

func NewStore(cfg config.RateLimitConfig) *Store {
	s := &Store{
		clients: make(map[string]*client),
		rps:     cfg.RPS,
		burst:   cfg.Burst,
		maxAge:  cfg.MaxAge,
		now:     time.Now,
	}
	if s.rps <= 0 {
		s.rps = 10
	}
	if s.burst <= 0 {
		s.burst = 20
	}
	if s.maxAge <= 0 {
		s.maxAge = 10 * time.Minute
	}
	return s
}

// Allow takes a token for key and returns the tokens left.
func (s *Store) Allow(key string) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cl, ok := s.clients[key]
	if !ok {
		cl = &client{limiter: rate.NewLimiter(rate.Limit(s.rps), s.burst)}
		s.clients[key] = cl
	}
	cl.lastSeen = now

	if !cl.limiter.AllowN(now, 1) {
		return false, 0
	}
	remaining := int(cl.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining
}

// Cleanup forgets clients idle for longer than MaxAge.
func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, cl := range s.clients {
		if now.Sub(cl.lastSeen) > s.maxAge {
			delete(s.clients, key)
		}
	}
}

// Run calls Cleanup every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func Middleware(store *Store) gin.HandlerFunc {
	limit := strconv.Itoa(int(store.rps))
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if clientIP == "" {
			clientIP = c.RemoteIP()
		}

		allowed, remaining := store.Allow(clientIP)
		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate limit exceeded",
				"error_code": "RATE_LIMIT_EXCEEDED",
			})
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
		c.Next()
	}
}
