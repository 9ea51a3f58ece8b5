package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message MongoDB 消息明细模型
type Message struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`               // 服务端分配，创建后不可变
	SenderID   uint64             `bson:"sender_id" json:"senderId"`             // 发送者 UID
	ReceiverID uint64             `bson:"receiver_id" json:"receiverId"`         // 接收者 UID 或群 ID，由 IsGroup 决定
	IsGroup    bool               `bson:"is_group" json:"isGroup"`               // 是否群聊消息
	Type       string             `bson:"type" json:"type"`                      // text / image / video / emoji / file
	Content    string             `bson:"content" json:"content"`                // 文本或媒体 URL
	FileName   string             `bson:"file_name,omitempty" json:"fileName"`   // 上传时的原始文件名
	CreatedAt  time.Time          `bson:"created_at" json:"createdAt"`           // 发送时间
	UpdatedAt  *time.Time         `bson:"updated_at,omitempty" json:"updatedAt"` // 仅编辑时写入
	IsRecalled bool               `bson:"is_recalled" json:"isRecalled"`         // 已撤回，内容保留但不下发
	IsRead     bool               `bson:"is_read" json:"isRead"`                 // 接收方已读
}
