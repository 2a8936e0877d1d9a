package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/siteprobe/config"
	"github.com/use-agent/siteprobe/models"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL  = time.Hour
	limiterSweepGap = 5 * time.Minute
)

// limiters holds one token bucket per caller identity.
type limiters struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (l *limiters) get(identity string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[identity]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[identity] = e
	}
	e.lastSeen = now
	return e.limiter
}

// sweep drops buckets idle since before cutoff.
func (l *limiters) sweep(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, id)
		}
	}
}

// RateLimit applies a token bucket per API key, or per client IP when auth
// is off. Rejections carry Retry-After. Idle buckets are swept until ctx
// is cancelled.
func RateLimit(ctx context.Context, cfg config.RateLimitConfig) gin.HandlerFunc {
	l := &limiters{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		entries: make(map[string]*limiterEntry),
	}

	go func() {
		ticker := time.NewTicker(limiterSweepGap)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.sweep(now.Add(-limiterIdleTTL))
			}
		}
	}()

	return func(c *gin.Context) {
		identity := c.GetString(IdentityKey)
		if identity == "" {
			identity = c.ClientIP()
		}

		if !l.get(identity, time.Now()).Allow() {
			if cfg.RequestsPerSecond > 0 {
				retryAfter := int(math.Ceil(1 / cfg.RequestsPerSecond))
				c.Header("Retry-After", strconv.Itoa(retryAfter))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "rate limit exceeded, please slow down",
				},
			})
			return
		}
		c.Next()
	}
}
