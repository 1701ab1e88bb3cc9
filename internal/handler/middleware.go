package handler

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tripdesk/backoffice/internal/logger"
	"github.com/tripdesk/backoffice/internal/model"
	"github.com/tripdesk/backoffice/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	authUserKey     = "auth_user"
	requestIDHeader = "X-Request-ID"
)

type tokenParser interface {
	ParseAccessToken(tokenStr string) (*model.AuthUser, error)
}

func AuthMiddleware(parser tokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "unauthorized"})
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" {
			c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "unauthorized"})
			c.Abort()
			return
		}

		user, err := parser.ParseAccessToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "unauthorized"})
			c.Abort()
			return
		}

		c.Set(authUserKey, user)
		c.Request = c.Request.WithContext(logger.ToContext(
			c.Request.Context(),
			logger.From(c.Request.Context()).With(logger.AccountID(user.ID.String())),
		))
		c.Next()
	}
}

func GetAuthUser(c *gin.Context) *model.AuthUser {
	if value, ok := c.Get(authUserKey); ok {
		if user, ok := value.(*model.AuthUser); ok {
			return user
		}
	}
	return nil
}

// RequirePermission must run after AuthMiddleware.
func RequirePermission(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := GetAuthUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "unauthorized"})
			c.Abort()
			return
		}
		if !user.HasPermission(name) {
			logger.From(c.Request.Context()).Warn("permission denied", zap.String("permission", name))
			c.JSON(http.StatusForbidden, model.ErrorResponse{Error: "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequestLogger propagates or assigns X-Request-ID and stores a request
// scoped logger in the request context.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		log := logger.L().With(logger.RequestID(requestID), logger.ClientIP(c.ClientIP()))
		c.Request = c.Request.WithContext(logger.ToContext(c.Request.Context(), log))

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.From(c.Request.Context()).Error("request", fields...)
		case status >= http.StatusBadRequest:
			logger.From(c.Request.Context()).Info("request", fields...)
		default:
			logger.From(c.Request.Context()).Debug("request", fields...)
		}
	}
}

// RateLimit counts requests per route and client IP. Limiter failures let
// the request through.
func RateLimit(limiter ratelimit.Limiter, route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		res, err := limiter.Allow(c.Request.Context(), route+":"+c.ClientIP())
		if err != nil {
			logger.From(c.Request.Context()).Warn("rate limiter unavailable", logger.Err(err))
			c.Next()
			return
		}
		if !res.Allowed {
			if res.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			}
			c.JSON(http.StatusTooManyRequests, model.ErrorResponse{Error: "too many requests"})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		c.Next()
	}
}

func CORSMiddleware(allowedOrigins []string, allowCredentials bool) gin.HandlerFunc {
	originMap := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		originMap[trimmed] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := originMap[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				if allowCredentials {
					c.Header("Access-Control-Allow-Credentials", "true")
				}
				c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
				c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Remaining, Retry-After")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
