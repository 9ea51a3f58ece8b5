package api

import (
	"Zalor/internal/api/middleware"
	"Zalor/internal/pkg/logger"
	"Zalor/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware(allowedOrigins))
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			response.Success(c, "pong")
		})

		// 浏览器无法为 WebSocket 设置请求头，Token 走查询参数
		apiGroup.GET("/ws", middleware.QueryAuthMiddleware(), group.WsHandler.Connect)

		messageGroup := apiGroup.Group("/messages")
		messageGroup.Use(middleware.AuthMiddleware())
		{
			messageGroup.POST("", group.MessageHandler.SendMessage)
			messageGroup.GET("/:receiverId", group.MessageHandler.GetHistory)
			messageGroup.POST("/mark-read/:receiverId", group.MessageHandler.MarkAsRead)
			messageGroup.DELETE("/:messageId", group.MessageHandler.RecallMessage)
			messageGroup.PUT("/:messageId", group.MessageHandler.EditMessage)
		}
	}

	return r
}
