package service

import (
	"Zalor/internal/api/dto"
	"Zalor/internal/pkg/consts"
	"Zalor/internal/repository"
	"context"
	"fmt"
	log "log/slog"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/jinzhu/copier"
)

// Cache 发送者信息缓存
type Cache interface {
	MGet(ctx context.Context, keys ...string) ([]string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// SenderDirectory 批量获取消息发送者的昵称与头像
type SenderDirectory interface {
	GetSenders(ctx context.Context, ids []uint64) (map[uint64]*dto.SenderDTO, error)
	Invalidate(ctx context.Context, id uint64) error
}

type senderDirectoryImpl struct {
	userRepo repository.UserRepo
	cache    Cache
}

func NewSenderDirectory(userRepo repository.UserRepo, cache Cache) SenderDirectory {
	return &senderDirectoryImpl{userRepo: userRepo, cache: cache}
}

// GetSenders 先读缓存，未命中的回源数据库并回写；缓存异常只降级不报错
func (s *senderDirectoryImpl) GetSenders(ctx context.Context, ids []uint64) (map[uint64]*dto.SenderDTO, error) {
	ids = uniqueIDs(ids)
	res := make(map[uint64]*dto.SenderDTO, len(ids))
	if len(ids) == 0 {
		return res, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = senderKey(id)
	}

	missed := make([]uint64, 0)
	values, err := s.cache.MGet(ctx, keys...)
	if err != nil {
		log.WarnContext(ctx, "sender cache unavailable", "err", err)
		values = nil
	}
	for i, id := range ids {
		if i < len(values) && values[i] != "" {
			var sender dto.SenderDTO
			if err := json.Unmarshal([]byte(values[i]), &sender); err == nil {
				res[id] = &sender
				continue
			}
		}
		missed = append(missed, id)
	}
	if len(missed) == 0 {
		return res, nil
	}

	users, err := s.userRepo.GetUserSimpleInfoByIds(ctx, missed)
	if err != nil {
		return nil, fmt.Errorf("get senders: %w", err)
	}
	for _, user := range users {
		sender := &dto.SenderDTO{}
		if err := copier.Copy(sender, user); err != nil {
			return nil, err
		}
		if sender.Avatar == "" {
			sender.Avatar = consts.DefaultAvatarURL
		}
		res[user.ID] = sender

		if data, err := json.Marshal(sender); err == nil {
			if err := s.cache.Set(ctx, senderKey(user.ID), string(data), consts.UserSimpleInfoTTL); err != nil {
				log.WarnContext(ctx, "write sender cache failed", "userID", user.ID, "err", err)
			}
		}
	}
	return res, nil
}

// Invalidate 用户资料变更后删除缓存
func (s *senderDirectoryImpl) Invalidate(ctx context.Context, id uint64) error {
	return s.cache.Delete(ctx, senderKey(id))
}

func senderKey(id uint64) string {
	return consts.UserSimpleInfoKey + strconv.FormatUint(id, 10)
}

func uniqueIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	res := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		res = append(res, id)
	}
	return res
}
