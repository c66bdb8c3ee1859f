package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pluginmind/pluginmind-backend/internal/http/api/handlers"
	"github.com/pluginmind/pluginmind-backend/internal/ratelimit"
	"github.com/pluginmind/pluginmind-backend/internal/session"

	log "github.com/sirupsen/logrus"
)

// SessionAuth validates the session cookie and loads the authenticated
// identity into the request context. Missing, malformed, and expired
// sessions all abort with 401; malformed and expired are surfaced
// identically so the response does not leak which check failed.
func SessionAuth(codec *session.Codec) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := session.ReadCookie(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required, please sign in"})
			return
		}

		claims, errVerify := codec.Verify(token)
		if errVerify != nil {
			log.WithError(errVerify).Debug("session verification failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			return
		}

		c.Set(handlers.ContextUserID, claims.UserID)
		c.Set(handlers.ContextEmail, claims.Email)
		c.Set(handlers.ContextClaims, claims)
		c.Next()
	}
}

// OptionalSessionAuth loads the authenticated identity when a session cookie
// is present and continues anonymously when it is absent. A present but
// invalid cookie is always an error, never treated as anonymous.
func OptionalSessionAuth(codec *session.Codec) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := session.ReadCookie(c.Request)
		if !ok {
			c.Next()
			return
		}

		claims, errVerify := codec.Verify(token)
		if errVerify != nil {
			log.WithError(errVerify).Debug("session verification failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			return
		}

		c.Set(handlers.ContextUserID, claims.UserID)
		c.Set(handlers.ContextEmail, claims.Email)
		c.Set(handlers.ContextClaims, claims)
		c.Next()
	}
}

// loginRateLimitMiddleware bounds login attempts per client IP.
func loginRateLimitMiddleware(limiter ratelimit.Limiter, perMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || perMinute <= 0 {
			c.Next()
			return
		}

		key := "login:" + c.ClientIP()
		result, errAllow := limiter.Allow(c.Request.Context(), key, perMinute, time.Minute, time.Now())
		if errAllow != nil {
			// A broken limiter backend must not lock every user out.
			log.WithError(errAllow).Warn("login rate limit check failed")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(perMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.Reset.Unix(), 10))
		if !result.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
			return
		}
		c.Next()
	}
}
