package dto

import "time"

// SendMessageReq 发送消息表单，附件通过 file 字段上传
type SendMessageReq struct {
	ReceiverID string `form:"receiverId" binding:"required"`
	Content    string `form:"content" validate:"max=5000"`
	IsGroup    bool   `form:"isGroup"`
	Type       string `form:"type" validate:"omitempty,oneof=text emoji"`
}

// EditMessageReq 编辑消息请求体
type EditMessageReq struct {
	Content string `json:"content" form:"content" binding:"required" validate:"max=5000"`
}

// SenderDTO 发送者简要信息
type SenderDTO struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// MessageDTO 消息明细响应，senderId 展开为发送者信息
type MessageDTO struct {
	ID         string     `json:"id"`
	Sender     *SenderDTO `json:"senderId"`
	ReceiverID uint64     `json:"receiverId"`
	IsGroup    bool       `json:"isGroup"`
	Type       string     `json:"type"`
	Content    string     `json:"content"`
	FileName   string     `json:"fileName,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  *time.Time `json:"updatedAt"`
	IsRecalled bool       `json:"isRecalled"`
	IsRead     bool       `json:"isRead"`
}

// MarkReadResult 标记已读结果
type MarkReadResult struct {
	Count int64 `json:"count"`
}
