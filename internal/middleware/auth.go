package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"coinflip-relay/internal/services"
)

const (
	SubjectKey = "subject"
	TokenIDKey = "token_id"
)

func AuthMiddleware(jwtService *services.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		var tokenString string

		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
				c.Abort()
				return
			}
			tokenString = parts[1]
		} else {
			tokenString = c.Query("token")
			if tokenString == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				c.Abort()
				return
			}
		}

		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(SubjectKey, claims.Subject)
		c.Set(TokenIDKey, claims.ID)

		c.Next()
	}
}

// RateLimitMiddleware limits each token subject, or each client IP when the
// route is public. Settling has a tighter budget than reads.
func RateLimitMiddleware(limiter services.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(SubjectKey)
		if key == "" {
			key = c.ClientIP()
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		limit := services.DefaultRateLimitReads
		window := time.Minute
		if strings.HasSuffix(path, "/set_winner") {
			limit = services.DefaultRateLimitSettle
		}

		allowed, err := limiter.CheckRateLimit(c.Request.Context(), key, path, limit, window)
		if err != nil || !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": window.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
