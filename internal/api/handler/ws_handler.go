package handler

import (
	"Zalor/internal/pkg/consts"
	"Zalor/internal/pkg/logger"
	"Zalor/internal/pkg/util"
	"Zalor/internal/realtime"
	"context"
	log "log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
	maxFrameSize  = 4096
	eventIdentify = "userConnected"
	eventJoinRoom = "joinRoom"
)

type WsHandler struct {
	hub        *realtime.Hub
	presence   *realtime.Presence
	upgrader   websocket.Upgrader
	sendBuffer int
	wg         sync.WaitGroup
}

func NewWsHandler(hub *realtime.Hub, presence *realtime.Presence, allowedOrigins []string, sendBuffer int) *WsHandler {
	return &WsHandler{
		hub:      hub,
		presence: presence,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || util.OriginAllowed(allowedOrigins, origin)
			},
		},
		sendBuffer: sendBuffer,
	}
}

// Connect 升级为 WebSocket，用户身份已由 QueryAuthMiddleware 校验
func (s *WsHandler) Connect(c *gin.Context) {
	userID := c.GetUint64(consts.CtxUserID)

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.ErrorContext(c.Request.Context(), "WS 协议升级失败", "err", err)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	ctx := logger.Detach(c.Request.Context())
	connID := uuid.NewString()
	client := realtime.NewClient(connID, s.sendBuffer)
	s.hub.Register(client)
	s.presence.OnConnect(connID)
	log.InfoContext(ctx, "用户 WS 连接已建立", "userID", userID, "connID", connID)

	go s.writeLoop(conn, client)
	s.readLoop(ctx, conn, connID, userID)

	s.hub.Unregister(connID)
	if err := s.presence.OnDisconnect(ctx, connID); err != nil {
		log.ErrorContext(ctx, "更新离线状态失败", "userID", userID, "err", err)
	}
	log.InfoContext(ctx, "用户 WS 连接已断开", "userID", userID, "connID", connID)
}

// readLoop 处理客户端上行帧，连接断开时返回
func (s *WsHandler) readLoop(ctx context.Context, conn *websocket.Conn, connID string, userID uint64) {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WarnContext(ctx, "WS 读取失败", "connID", connID, "err", err)
			}
			return
		}

		var frame realtime.Frame
		if err = json.Unmarshal(data, &frame); err != nil {
			log.WarnContext(ctx, "WS 帧格式错误", "connID", connID, "err", err)
			continue
		}
		s.handleFrame(ctx, connID, userID, &frame)
	}
}

func (s *WsHandler) handleFrame(ctx context.Context, connID string, userID uint64, frame *realtime.Frame) {
	switch frame.Event {
	case eventIdentify:
		claimed, ok := parseFrameID(frame.Data)
		if !ok || claimed != userID {
			log.WarnContext(ctx, "WS 身份声明与 Token 不一致", "connID", connID, "userID", userID)
			return
		}
		if err := s.presence.Identify(ctx, connID, userID); err != nil {
			log.ErrorContext(ctx, "更新在线状态失败", "userID", userID, "err", err)
		}
	case eventJoinRoom:
		var roomID string
		if err := json.Unmarshal(frame.Data, &roomID); err != nil {
			log.WarnContext(ctx, "WS 房间号格式错误", "connID", connID, "err", err)
			return
		}
		if !realtime.CanJoin(userID, roomID) {
			log.WarnContext(ctx, "WS 无权加入房间", "connID", connID, "userID", userID, "room", roomID)
			return
		}
		s.hub.Join(connID, roomID)
	default:
		log.DebugContext(ctx, "WS 未知事件", "connID", connID, "event", frame.Event)
	}
}

// writeLoop 唯一的写协程，发送队列关闭时结束并关闭连接
func (s *WsHandler) writeLoop(conn *websocket.Conn, client *realtime.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame, ok := <-client.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Wait 等待所有连接完成下线处理，用于优雅退出
func (s *WsHandler) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("WS 连接未在超时前全部关闭")
	}
}

// parseFrameID 兼容数字与字符串两种形式的用户 ID
func parseFrameID(raw json.RawMessage) (uint64, bool) {
	var id uint64
	if err := json.Unmarshal(raw, &id); err == nil {
		return id, id > 0
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, false
	}
	id, err := strconv.ParseUint(str, 10, 64)
	return id, err == nil && id > 0
}
