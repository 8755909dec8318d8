package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cppla/rewardhub/utils"
)

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

const (
	limiterIdleTTL = 5 * time.Minute
	sweepInterval  = time.Minute
)

// limiterSet holds one token bucket per caller. Idle buckets expire after limiterIdleTTL and are
// swept at most once per sweepInterval.
type limiterSet struct {
	mu        sync.Mutex
	limiters  map[string]*rateLimiter
	limit     rate.Limit
	burst     int
	now       func() time.Time
	nextSweep time.Time
}

// RateLimitMiddleware applies a token bucket per authenticated user, falling back to the client IP.
// perMinute <= 0 disables limiting.
func RateLimitMiddleware(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(ctx *gin.Context) { ctx.Next() }
	}
	set := &limiterSet{
		limiters: map[string]*rateLimiter{},
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    max(perMinute/2, 1),
		now:      time.Now,
	}

	return func(ctx *gin.Context) {
		if !set.allow(callerKey(ctx)) {
			utils.Error(ctx, http.StatusTooManyRequests, utils.CodeRateLimited, "rate limit exceeded")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

func callerKey(ctx *gin.Context) string {
	if id, ok := ctx.Get(ContextUserIDKey); ok {
		return fmt.Sprintf("user:%v", id)
	}
	return "ip:" + ctx.ClientIP()
}

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !now.Before(s.nextSweep) {
		s.sweep(now)
	}

	l, ok := s.limiters[key]
	if !ok {
		l = &rateLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = l
	}
	l.expires = now.Add(limiterIdleTTL)
	return l.limiter.AllowN(now, 1)
}

func (s *limiterSet) sweep(now time.Time) {
	for k, l := range s.limiters {
		if now.After(l.expires) {
			delete(s.limiters, k)
		}
	}
	s.nextSweep = now.Add(sweepInterval)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
