package kafka

import (
	"Zalor/internal/api/config"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
)

// ConsumerManager 管理 Kafka 消费者
type ConsumerManager struct {
	usersTopic    string
	usersConsumer sarama.ConsumerGroup
	usersHandler  sarama.ConsumerGroupHandler
}

func NewConsumerManager(cfg *config.Config, cache UserCacheInvalidator) (*ConsumerManager, error) {
	saramaCfg := newSaramaConfig(cfg.Kafka)

	usersConsumer, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.KafkaUserConsumer.GroupID, saramaCfg)
	if err != nil {
		return nil, err
	}

	return &ConsumerManager{
		usersTopic:    cfg.KafkaUserConsumer.Topic,
		usersConsumer: usersConsumer,
		usersHandler:  NewUserHandler(cache),
	}, nil
}

// Start 阻塞运行直到 ctx 结束
func (m *ConsumerManager) Start(ctx context.Context) error {
	go func() {
		for err := range m.usersConsumer.Errors() {
			log.Error("users consumer error", "err", err)
		}
	}()

	go func() {
		log.Info("users consumer started", "topic", m.usersTopic)
		for {
			if err := m.usersConsumer.Consume(ctx, []string{m.usersTopic}, m.usersHandler); err != nil {
				log.Error("Error from consumer", "err", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	<-ctx.Done()
	log.Info("Kafka Manager shutting down...")

	if err := m.usersConsumer.Close(); err != nil {
		log.Error("Failed to close users consumer", "err", err)
	}
	return nil
}
