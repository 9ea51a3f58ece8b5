package realtime

import (
	"Zalor/internal/pkg/consts"
	"context"
	log "log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisFanout 多实例部署时经 Redis 频道转发帧，每个实例订阅后投递给本地 Hub
type RedisFanout struct {
	rdb *redis.Client
	hub *Hub
}

func NewRedisFanout(rdb *redis.Client, hub *Hub) *RedisFanout {
	return &RedisFanout{rdb: rdb, hub: hub}
}

func (s *RedisFanout) PublishRoom(ctx context.Context, roomID string, frame []byte) error {
	return s.rdb.Publish(ctx, consts.IMRoomKey+roomID, frame).Err()
}

func (s *RedisFanout) PublishGlobal(ctx context.Context, frame []byte) error {
	return s.rdb.Publish(ctx, consts.IMGlobalKey, frame).Err()
}

// Run 订阅房间频道与全局频道，直到 ctx 结束
func (s *RedisFanout) Run(ctx context.Context) error {
	pubsub := s.rdb.PSubscribe(ctx, consts.IMRoomKey+"*")
	defer func() {
		_ = pubsub.Close()
	}()
	if err := pubsub.Subscribe(ctx, consts.IMGlobalKey); err != nil {
		return err
	}

	log.Info("Redis fanout subscriber started")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Info("Redis fanout subscriber stopping...")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.deliver(msg)
		}
	}
}

func (s *RedisFanout) deliver(msg *redis.Message) {
	frame := []byte(msg.Payload)
	if msg.Channel == consts.IMGlobalKey {
		s.hub.DeliverAll(frame)
		return
	}
	roomID, ok := strings.CutPrefix(msg.Channel, consts.IMRoomKey)
	if !ok || roomID == "" {
		log.Warn("unexpected fanout channel", "channel", msg.Channel)
		return
	}
	s.hub.DeliverRoom(roomID, frame)
}
