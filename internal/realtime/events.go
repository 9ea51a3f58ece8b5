package realtime

import (
	"Zalor/internal/api/dto"
	"fmt"

	"github.com/goccy/go-json"
)

// EventKind 推送给客户端的事件名
type EventKind string

const (
	EventReceiveMessage  EventKind = "receiveMessage"
	EventMessageRead     EventKind = "messageRead"
	EventMessageRecalled EventKind = "messageRecalled"
	EventMessageEdited   EventKind = "messageEdited"
	EventUserStatus      EventKind = "userStatus"
)

// Event 推送事件，只能是本包定义的几种
type Event interface {
	Kind() EventKind
	isEvent()
}

// ReceiveMessage 新消息，发送者信息已展开
type ReceiveMessage struct {
	Message *dto.MessageDTO
}

// MessageRead 已读回执：SenderID 为执行已读的一方
type MessageRead struct {
	ReceiverID uint64 `json:"receiverId"`
	SenderID   uint64 `json:"senderId"`
}

// MessageRecalled 撤回通知，仅携带消息 ID
type MessageRecalled struct {
	MessageID string
}

// MessageEdited 编辑后的完整消息
type MessageEdited struct {
	Message *dto.MessageDTO
}

// UserStatus 上下线通知
type UserStatus struct {
	UserID   uint64 `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

func (ReceiveMessage) Kind() EventKind  { return EventReceiveMessage }
func (MessageRead) Kind() EventKind     { return EventMessageRead }
func (MessageRecalled) Kind() EventKind { return EventMessageRecalled }
func (MessageEdited) Kind() EventKind   { return EventMessageEdited }
func (UserStatus) Kind() EventKind      { return EventUserStatus }

func (ReceiveMessage) isEvent()  {}
func (MessageRead) isEvent()     {}
func (MessageRecalled) isEvent() {}
func (MessageEdited) isEvent()   {}
func (UserStatus) isEvent()      {}

// Frame WebSocket 上下行统一的帧格式
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event EventKind `json:"event"`
	Data  any       `json:"data"`
}

// Encode 将事件编码为 {event, data} 帧
func Encode(evt Event) ([]byte, error) {
	var data any
	switch e := evt.(type) {
	case ReceiveMessage:
		data = e.Message
	case MessageRead:
		data = e
	case MessageRecalled:
		data = e.MessageID
	case MessageEdited:
		data = e.Message
	case UserStatus:
		data = e
	default:
		return nil, fmt.Errorf("unknown event %T", evt)
	}
	return json.Marshal(outFrame{Event: evt.Kind(), Data: data})
}
