package kafka

import (
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
)

const usersTable = "users"

// UserCacheInvalidator 发送者信息缓存的失效入口
type UserCacheInvalidator interface {
	Invalidate(ctx context.Context, userID uint64) error
}

// UserHandler 消费 users 表的 binlog，资料变化时清除发送者缓存
type UserHandler struct {
	cache UserCacheInvalidator
}

func NewUserHandler(cache UserCacheInvalidator) *UserHandler {
	return &UserHandler{cache: cache}
}

func (s *UserHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("users consumer setup")
	return nil
}

func (s *UserHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("users consumer cleanup")
	return nil
}

func (s *UserHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	if err := pullMessageBatch(session, claim, s.logic); err != nil {
		log.Error("topic-users process batch error", "err", err)
		return err
	}
	return nil
}

func (s *UserHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	canalMsg, err := ToCanalMessage(msg, usersTable)
	if err != nil {
		return err
	}

	for i, row := range canalMsg.Data {
		// 只有影响消息展示的列变化才需要失效
		if canalMsg.Type == UPDATE && !canalMsg.Changed(i, "name", "avatar", "is_delete") {
			continue
		}
		if canalMsg.Type != UPDATE && canalMsg.Type != DELETE {
			continue
		}

		id, err := StrToUint64(row["id"])
		if err != nil {
			return errors.Wrap(ErrSkip, err.Error())
		}
		if err = s.cache.Invalidate(ctx, id); err != nil {
			return errors.Wrapf(err, "invalidate sender cache of user %d", id)
		}
		log.DebugContext(ctx, "sender cache invalidated", "userID", id, "type", canalMsg.Type)
	}
	return nil
}
