package service

import (
	"Zalor/internal/api/dto"
	"Zalor/internal/pkg/consts"
	"Zalor/internal/pkg/logger"
	"Zalor/internal/pkg/mongo"
	"Zalor/internal/pkg/util"
	"Zalor/internal/realtime"
	"Zalor/internal/repository"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

// ObjectStorage 附件上传
type ObjectStorage interface {
	UploadFile(ctx context.Context, objectName, filePath, contentType string) (string, error)
	DeleteFile(ctx context.Context, objectName string) error
}

// UploadPolicy 附件限制
type UploadPolicy struct {
	MaxSize int64
}

// MessageService 消息生命周期：发送、历史、已读、撤回、编辑
type MessageService interface {
	SendMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq, file *dto.Attachment) (*dto.MessageDTO, error)
	GetHistory(ctx context.Context, viewerID uint64, peerID string, isGroup bool) ([]*dto.MessageDTO, error)
	MarkAsRead(ctx context.Context, viewerID uint64, peerID string, isGroup bool) (int64, error)
	RecallMessage(ctx context.Context, requesterID uint64, messageID string) error
	EditMessage(ctx context.Context, requesterID uint64, messageID string, content string) (*dto.MessageDTO, error)
}

type messageServiceImpl struct {
	messageRepo mongo.MessageRepo
	userRepo    repository.UserRepo
	groupRepo   repository.GroupRepo
	senders     SenderDirectory
	storage     ObjectStorage
	broadcaster realtime.Broadcaster
	policy      UploadPolicy
	now         func() time.Time
}

func NewMessageService(
	messageRepo mongo.MessageRepo,
	userRepo repository.UserRepo,
	groupRepo repository.GroupRepo,
	senders SenderDirectory,
	storage ObjectStorage,
	broadcaster realtime.Broadcaster,
	policy UploadPolicy,
) MessageService {
	return &messageServiceImpl{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		groupRepo:   groupRepo,
		senders:     senders,
		storage:     storage,
		broadcaster: broadcaster,
		policy:      policy,
		now:         time.Now,
	}
}

// SendMessage 发送消息
func (s *messageServiceImpl) SendMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq, file *dto.Attachment) (*dto.MessageDTO, error) {
	// 暂存文件无论成功失败都要清理
	if file != nil {
		defer discardStaged(ctx, file.Path)
	}

	receiverID, err := parseID(req.ReceiverID)
	if err != nil {
		return nil, ErrReceiverInvalid
	}
	if file == nil && strings.TrimSpace(req.Content) == "" {
		return nil, ErrMessageEmpty
	}

	msgType := consts.MessageTypeText
	if req.Type == consts.MessageTypeEmoji {
		msgType = consts.MessageTypeEmoji
	}

	var mime, ext string
	if file != nil {
		if s.policy.MaxSize > 0 && file.Size > s.policy.MaxSize {
			return nil, ErrFileTooLarge
		}
		mime, ext, err = util.DetectAttachment(file.Path)
		if err != nil {
			if errors.Is(err, util.ErrMimeNotAllowed) {
				return nil, ErrFileNotSupported
			}
			return nil, fmt.Errorf("detect attachment: %w", err)
		}
		msgType = util.MessageTypeOf(mime)
	}

	if err = s.checkReceiver(ctx, receiverID, req.IsGroup); err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	msg := &mongo.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		IsGroup:    req.IsGroup,
		Type:       msgType,
		Content:    req.Content,
		CreatedAt:  now,
	}

	var objectName string
	if file != nil {
		objectName = util.ObjectName(msgType, file.FileName, ext, now)
		url, err := s.storage.UploadFile(ctx, objectName, file.Path, mime)
		if err != nil {
			return nil, fmt.Errorf("upload attachment: %w", err)
		}
		msg.Content = url
		msg.FileName = file.FileName
	}

	if err = s.messageRepo.SaveMessage(ctx, msg); err != nil {
		if objectName != "" {
			if delErr := s.storage.DeleteFile(logger.Detach(ctx), objectName); delErr != nil {
				log.WarnContext(ctx, "remove orphan attachment failed", "object", objectName, "err", delErr)
			}
		}
		return nil, fmt.Errorf("save message: %w", err)
	}

	res := s.toMessageDTOs(ctx, []*mongo.Message{msg})[0]
	s.broadcaster.BroadcastToRoom(realtime.RoomFor(msg.IsGroup, senderID, receiverID), realtime.ReceiveMessage{Message: res})

	log.InfoContext(ctx, "message sent", "messageID", res.ID, "type", msgType, "isGroup", msg.IsGroup)
	return res, nil
}

// GetHistory 会话全部消息，按发送时间升序，不改变已读状态
func (s *messageServiceImpl) GetHistory(ctx context.Context, viewerID uint64, peerID string, isGroup bool) ([]*dto.MessageDTO, error) {
	targetID, err := parseID(peerID)
	if err != nil {
		return nil, ErrReceiverInvalid
	}

	var models []*mongo.Message
	if isGroup {
		models, err = s.messageRepo.GetGroupHistory(ctx, targetID)
	} else {
		models, err = s.messageRepo.GetDirectHistory(ctx, viewerID, targetID)
	}
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	return s.toMessageDTOs(ctx, models), nil
}

// MarkAsRead 将会话中他人发来的未读消息标记为已读
func (s *messageServiceImpl) MarkAsRead(ctx context.Context, viewerID uint64, peerID string, isGroup bool) (int64, error) {
	targetID, err := parseID(peerID)
	if err != nil {
		return 0, ErrReceiverInvalid
	}

	var count int64
	if isGroup {
		count, err = s.messageRepo.MarkGroupRead(ctx, viewerID, targetID)
	} else {
		count, err = s.messageRepo.MarkDirectRead(ctx, viewerID, targetID)
	}
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}

	if count > 0 {
		s.broadcaster.BroadcastToRoom(
			realtime.RoomFor(isGroup, viewerID, targetID),
			realtime.MessageRead{ReceiverID: targetID, SenderID: viewerID},
		)
	}
	return count, nil
}

// RecallMessage 撤回消息，仅发送者可操作，重复撤回不报错
func (s *messageServiceImpl) RecallMessage(ctx context.Context, requesterID uint64, messageID string) error {
	msg, err := s.getOwnMessage(ctx, requesterID, messageID)
	if err != nil {
		return err
	}

	if !msg.IsRecalled {
		if err = s.messageRepo.MarkRecalled(ctx, msg.ID); err != nil {
			if errors.Is(err, mongodriver.ErrNoDocuments) {
				return ErrMessageNotFound
			}
			return fmt.Errorf("recall message: %w", err)
		}
	}

	// 已撤回的消息重复撤回时同样广播，客户端按 id 幂等隐藏
	s.broadcaster.BroadcastToRoom(
		realtime.RoomFor(msg.IsGroup, msg.SenderID, msg.ReceiverID),
		realtime.MessageRecalled{MessageID: msg.ID.Hex()},
	)
	return nil
}

// EditMessage 编辑文本或表情消息，仅发送者可操作
func (s *messageServiceImpl) EditMessage(ctx context.Context, requesterID uint64, messageID string, content string) (*dto.MessageDTO, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrMessageEmpty
	}

	msg, err := s.getOwnMessage(ctx, requesterID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsRecalled {
		return nil, ErrMessageRecalled
	}
	if msg.Type != consts.MessageTypeText && msg.Type != consts.MessageTypeEmoji {
		return nil, ErrMessageNotEditable
	}

	updated, err := s.messageRepo.UpdateContent(ctx, msg.ID, content, s.now().UTC().Truncate(time.Millisecond))
	if err != nil {
		if errors.Is(err, mongo.ErrMessageRecalled) {
			return nil, ErrMessageRecalled
		}
		return nil, fmt.Errorf("edit message: %w", err)
	}

	res := s.toMessageDTOs(ctx, []*mongo.Message{updated})[0]
	s.broadcaster.BroadcastToRoom(
		realtime.RoomFor(updated.IsGroup, updated.SenderID, updated.ReceiverID),
		realtime.MessageEdited{Message: res},
	)
	return res, nil
}

// getOwnMessage 校验消息存在且由请求者发送
func (s *messageServiceImpl) getOwnMessage(ctx context.Context, requesterID uint64, messageID string) (*mongo.Message, error) {
	id, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return nil, ErrMessageIDInvalid
	}

	msg, err := s.messageRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg.SenderID != requesterID {
		return nil, ErrNotMessageSender
	}
	return msg, nil
}

func (s *messageServiceImpl) checkReceiver(ctx context.Context, receiverID uint64, isGroup bool) error {
	if isGroup {
		exists, err := s.groupRepo.Exists(ctx, receiverID)
		if err != nil {
			return fmt.Errorf("check group: %w", err)
		}
		if !exists {
			return ErrReceiverNotFound
		}
		return nil
	}

	user, err := s.userRepo.GetUserById(ctx, receiverID)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if user == nil {
		return ErrReceiverNotFound
	}
	return nil
}

// toMessageDTOs 展开发送者信息；撤回消息不下发内容
func (s *messageServiceImpl) toMessageDTOs(ctx context.Context, models []*mongo.Message) []*dto.MessageDTO {
	ids := make([]uint64, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.SenderID)
	}
	senders, err := s.senders.GetSenders(ctx, ids)
	if err != nil {
		log.WarnContext(ctx, "load senders failed", "err", err)
		senders = nil
	}

	res := make([]*dto.MessageDTO, 0, len(models))
	for _, m := range models {
		sender, ok := senders[m.SenderID]
		if !ok {
			sender = &dto.SenderDTO{ID: m.SenderID, Avatar: consts.DefaultAvatarURL}
		}
		d := &dto.MessageDTO{
			ID:         m.ID.Hex(),
			Sender:     sender,
			ReceiverID: m.ReceiverID,
			IsGroup:    m.IsGroup,
			Type:       m.Type,
			Content:    m.Content,
			FileName:   m.FileName,
			CreatedAt:  m.CreatedAt,
			UpdatedAt:  m.UpdatedAt,
			IsRecalled: m.IsRecalled,
			IsRead:     m.IsRead,
		}
		if m.IsRecalled {
			d.Content = ""
			d.FileName = ""
		}
		res = append(res, d)
	}
	return res
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.New("id must be positive")
	}
	return id, nil
}

func discardStaged(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WarnContext(ctx, "remove staged upload failed", "path", path, "err", err)
	}
}
