package api

import "Zalor/internal/api/handler"

// HandlersGroup 封装了所有已初始化的 Handler 实例
type HandlersGroup struct {
	MessageHandler *handler.MessageHandler
	WsHandler      *handler.WsHandler
}
