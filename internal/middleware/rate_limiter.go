package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/synesthesie/artmarket/internal/config"
)

// redisTimeout bounds every limiter round trip so a slow redis never stalls requests.
const redisTimeout = 250 * time.Millisecond

// hit increments key and starts its window on the first hit.
func hit(ctx context.Context, rdb *redis.Client, key string, window time.Duration) (int64, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	pipe := rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return incr.Val(), ttl.Val(), nil
}

// rateLimitKey buckets authenticated callers by user id and everyone else by
// client IP. The limiter runs before route auth, so the token is read here.
func rateLimitKey(c *gin.Context, secret string) string {
	caller := CallerFrom(c)
	if caller == nil {
		caller, _ = callerFromRequest(c, secret)
	}
	if caller != nil {
		return "rate_limit:user:" + caller.UserID.String()
	}
	return "rate_limit:" + c.ClientIP()
}

// RateLimiter limits requests per caller (or client IP for anonymous callers)
// within RATE_LIMIT_DURATION. It fails open when redis is unavailable.
func RateLimiter(redisClient *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rateLimitKey(c, cfg.JWTSecret)
		count, ttl, err := hit(c.Request.Context(), redisClient, key, cfg.RateLimitDuration)
		if err != nil {
			log.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		remaining := max(int64(cfg.RateLimitRequests)-count, 0)
		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.RateLimitRequests))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(cfg.RateLimitRequests) {
			c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(ttl).Unix()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limited",
				"message":     "Too many requests",
				"retry_after": ttl.Seconds(),
			})
			return
		}
		c.Next()
	}
}
