package kafka

import (
	"context"
	log "log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

const (
	batchSize     = 32
	batchTimeout  = 1 * time.Second
	retryInterval = 100 * time.Millisecond
	retryMax      = 5 * time.Second
)

// ErrSkip 标记无需重试的消息，例如表名不匹配或数据损坏
var ErrSkip = errors.New("skip canal message")

type LogicFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

// pullMessageBatch 按数量或超时攒批后执行业务逻辑
func pullMessageBatch(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim, logic LogicFunc) error {
	batch := make([]*sarama.ConsumerMessage, 0, batchSize)
	ticker := time.NewTicker(batchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		processBatch(session, batch, logic)
		batch = make([]*sarama.ConsumerMessage, 0, batchSize)
	}

	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				flush()
				return nil
			}
			batch = append(batch, msg)
			if len(batch) >= batchSize {
				flush()
				ticker.Reset(batchTimeout)
			}
		case <-ticker.C:
			flush()
		case <-session.Context().Done():
			return nil
		}
	}
}

// processBatch 并发处理一批消息，全部成功或被跳过后提交最后一条的偏移量
func processBatch(session sarama.ConsumerGroupSession, messages []*sarama.ConsumerMessage, logic LogicFunc) {
	ctx := session.Context()
	var wg sync.WaitGroup

	for _, msg := range messages {
		wg.Add(1)
		go func(m *sarama.ConsumerMessage) {
			defer wg.Done()
			retry(ctx, m, logic)
		}(msg)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return
	}
	session.MarkMessage(messages[len(messages)-1], "")
	session.Commit()
}

// retry 指数退避重试，返回是否处理成功
func retry(ctx context.Context, m *sarama.ConsumerMessage, logic LogicFunc) bool {
	interval := retryInterval
	for {
		err := logic(ctx, m)
		if err == nil {
			return true
		}
		if errors.Is(err, ErrSkip) {
			log.WarnContext(ctx, "skip canal message", "topic", m.Topic, "offset", m.Offset, "err", err)
			return false
		}
		log.ErrorContext(ctx, "process message error", "topic", m.Topic, "offset", m.Offset, "err", err)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
		interval *= 2
		if interval > retryMax {
			interval = retryMax
		}
	}
}

// ToCanalMessage 将 kafka 消息转换为 canal 消息结构体
func ToCanalMessage(msg *sarama.ConsumerMessage, tableName string) (*CanalMessage, error) {
	var canalMsg CanalMessage
	if err := json.Unmarshal(msg.Value, &canalMsg); err != nil {
		return nil, errors.Wrapf(ErrSkip, "unmarshal canal message: %v", err)
	}
	if canalMsg.Table != tableName {
		return nil, errors.Wrapf(ErrSkip, "table %q not match %q", canalMsg.Table, tableName)
	}
	if canalMsg.IsDDL || len(canalMsg.Data) == 0 {
		return nil, errors.Wrap(ErrSkip, "no row data")
	}
	return &canalMsg, nil
}
