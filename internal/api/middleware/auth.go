package middleware

import (
	"Zalor/internal/pkg/consts"
	"Zalor/internal/pkg/redis"
	"Zalor/internal/pkg/response"
	"Zalor/internal/pkg/security"
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 负责验证 JWT 并将用户身份信息注入 Context
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			response.Fail(c, response.Unauthorized, "Token 缺失或格式错误")
			c.Abort()
			return
		}

		userID, err := Authenticate(c.Request.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			response.Fail(c, response.Unauthorized, "Token 无效或已过期")
			c.Abort()
			return
		}

		c.Set(consts.CtxUserID, userID)
		newCtx := context.WithValue(c.Request.Context(), consts.CtxUserID, userID)
		c.Request = c.Request.WithContext(newCtx)

		c.Next()
	}
}

// QueryAuthMiddleware WebSocket 握手无法携带 Header，从 query 的 token 参数鉴权
func QueryAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			response.Fail(c, response.Unauthorized, "Token 缺失或格式错误")
			c.Abort()
			return
		}

		userID, err := Authenticate(c.Request.Context(), token)
		if err != nil {
			response.Fail(c, response.Unauthorized, "Token 无效或已过期")
			c.Abort()
			return
		}

		c.Set(consts.CtxUserID, userID)
		c.Next()
	}
}

// Authenticate 校验 Token 并检查注销黑名单
func Authenticate(ctx context.Context, token string) (uint64, error) {
	signature, err := security.ExtractSignature(token)
	if err != nil {
		return 0, err
	}

	if redis.Rdb != nil {
		value, err := redis.GetValue(ctx, consts.TokenBlacklistKey+signature)
		if err != nil {
			return 0, err
		}
		if value != "" {
			return 0, errTokenRevoked
		}
	}

	claims, err := security.ValidateToken(token)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}
