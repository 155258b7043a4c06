package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/synesthesie/artmarket/internal/config"
)

// UploadRateLimit caps the number of image carrying requests each user can
// make per day. Must run after Auth.
func UploadRateLimit(redisClient *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.ContentType(), "multipart/") {
			c.Next()
			return
		}
		caller := CallerFrom(c)
		if caller == nil {
			c.Next()
			return
		}

		// Resets daily at midnight for predictable behavior
		now := time.Now()
		key := fmt.Sprintf("upload_limit:%s:%s", caller.UserID.String(), now.Format("2006-01-02"))
		midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())

		count, ttl, err := hit(c.Request.Context(), redisClient, key, midnight.Sub(now))
		if err != nil {
			log.Warn().Err(err).Str("user_id", caller.UserID.String()).Msg("upload limiter unavailable, allowing upload")
			c.Next()
			return
		}

		if count > int64(cfg.UploadDailyLimit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":               "upload_rate_limit_exceeded",
				"message":             "Too many uploads today. Please try again tomorrow.",
				"retry_after_hours":   int(ttl.Hours()),
				"max_uploads_per_day": cfg.UploadDailyLimit,
			})
			return
		}
		c.Next()
	}
}
