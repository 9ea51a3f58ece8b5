package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrMessageRecalled 目标消息已撤回，条件更新未命中
var ErrMessageRecalled = errors.New("message recalled")

type MessageRepo interface {
	SaveMessage(ctx context.Context, msg *Message) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*Message, error)
	GetDirectHistory(ctx context.Context, userID, peerID uint64) ([]*Message, error)
	GetGroupHistory(ctx context.Context, groupID uint64) ([]*Message, error)
	MarkRecalled(ctx context.Context, id primitive.ObjectID) error
	UpdateContent(ctx context.Context, id primitive.ObjectID, content string, at time.Time) (*Message, error)
	MarkDirectRead(ctx context.Context, viewerID, peerID uint64) (int64, error)
	MarkGroupRead(ctx context.Context, viewerID, groupID uint64) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

type messageRepoImpl struct {
	col *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) MessageRepo {
	return &messageRepoImpl{
		col: db.Collection("messages"),
	}
}

// 历史记录统一排序：created_at 升序，同一时刻按 _id 插入顺序
var historySort = bson.D{
	{Key: "created_at", Value: 1},
	{Key: "_id", Value: 1},
}

// SaveMessage 写入消息，ID 在写入前分配
func (s *messageRepoImpl) SaveMessage(ctx context.Context, msg *Message) error {
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	_, err := s.col.InsertOne(ctx, msg)
	return err
}

// GetByID 精确查询，不存在返回 mongo.ErrNoDocuments
func (s *messageRepoImpl) GetByID(ctx context.Context, id primitive.ObjectID) (*Message, error) {
	var msg Message
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetDirectHistory 单聊双方的全部消息
func (s *messageRepoImpl) GetDirectHistory(ctx context.Context, userID, peerID uint64) ([]*Message, error) {
	filter := bson.M{
		"is_group": false,
		"$or": bson.A{
			bson.M{"sender_id": userID, "receiver_id": peerID},
			bson.M{"sender_id": peerID, "receiver_id": userID},
		},
	}
	return s.find(ctx, filter)
}

// GetGroupHistory 群聊全部消息
func (s *messageRepoImpl) GetGroupHistory(ctx context.Context, groupID uint64) ([]*Message, error) {
	return s.find(ctx, bson.M{"receiver_id": groupID, "is_group": true})
}

func (s *messageRepoImpl) find(ctx context.Context, filter bson.M) ([]*Message, error) {
	cursor, err := s.col.Find(ctx, filter, options.Find().SetSort(historySort))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	messages := make([]*Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkRecalled 撤回：单文档原子更新，重复撤回不报错
func (s *messageRepoImpl) MarkRecalled(ctx context.Context, id primitive.ObjectID) error {
	result, err := s.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"is_recalled": true}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// UpdateContent 编辑：仅未撤回的消息可改，返回更新后的文档
func (s *messageRepoImpl) UpdateContent(ctx context.Context, id primitive.ObjectID, content string, at time.Time) (*Message, error) {
	filter := bson.M{"_id": id, "is_recalled": false}
	update := bson.M{"$set": bson.M{"content": content, "updated_at": at}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var msg Message
	err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMessageRecalled
		}
		return nil, err
	}
	return &msg, nil
}

// MarkDirectRead 单聊已读：对方发给我的未读消息
func (s *messageRepoImpl) MarkDirectRead(ctx context.Context, viewerID, peerID uint64) (int64, error) {
	filter := bson.M{
		"sender_id":   peerID,
		"receiver_id": viewerID,
		"is_group":    false,
		"is_read":     false,
	}
	return s.markRead(ctx, filter)
}

// MarkGroupRead 群聊已读：群内非本人发送的未读消息
func (s *messageRepoImpl) MarkGroupRead(ctx context.Context, viewerID, groupID uint64) (int64, error) {
	filter := bson.M{
		"receiver_id": groupID,
		"is_group":    true,
		"is_read":     false,
		"sender_id":   bson.M{"$ne": viewerID},
	}
	return s.markRead(ctx, filter)
}

func (s *messageRepoImpl) markRead(ctx context.Context, filter bson.M) (int64, error) {
	result, err := s.col.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"is_read": true}})
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// EnsureIndexes 建立会话查询与已读更新所需索引
func (s *messageRepoImpl) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_direct_conv"),
		},
		{
			Keys:    bson.D{{Key: "receiver_id", Value: 1}, {Key: "is_group", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_receiver_conv"),
		},
	})
	return err
}
